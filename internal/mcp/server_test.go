// ABOUTME: Tests for MCP method handling independent of transport
// ABOUTME: Uses the real router over a stub provider and a fake resource catalog

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
	"github.com/2389/knowledge-bridge/internal/resources"
)

type fakeResources struct {
	readErr error
}

func (f *fakeResources) List() []resources.Resource {
	return []resources.Resource{{URI: resources.HealthURI, Name: "System health", MimeType: "application/json"}}
}

func (f *fakeResources) Read(ctx context.Context, uri string) (*resources.Contents, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if uri != resources.HealthURI {
		return nil, &resources.UnknownResourceError{URI: uri}
	}
	return &resources.Contents{URI: uri, MimeType: "application/json", Text: `{"status":"healthy"}`}, nil
}

func newTestRouter(t *testing.T) *packs.Router {
	t.Helper()
	sess, err := identity.NewSession("http://api.test", "employee-myproject-secret123", "")
	require.NoError(t, err)

	echo := packs.NewPack("echo", &packs.Tool{
		Definition: packs.ToolDefinition{
			Name:        "echo",
			Description: "Echo the message back",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`),
		},
		Handler: func(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
			var in struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, err
			}
			if in.Message == "fail" {
				return nil, errors.New("echo refused")
			}
			return packs.Success("echo", in.Message), nil
		},
	})

	reg := packs.NewRegistry(nil)
	require.NoError(t, reg.Register(echo))
	return packs.NewRouter(packs.RouterConfig{Registry: reg, Session: sess})
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Tools == nil {
		cfg.Tools = newTestRouter(t)
	}
	if cfg.Resources == nil {
		cfg.Resources = &fakeResources{}
	}
	cfg.Version = "test"
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

// roundTrip handles msg and decodes the reply into a generic map.
func roundTrip(t *testing.T, s *Server, msg string) map[string]any {
	t.Helper()
	resp := s.Handle(context.Background(), []byte(msg))
	require.NotNil(t, resp)
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func rpcError(t *testing.T, out map[string]any) (int, string) {
	t.Helper()
	e, ok := out["error"].(map[string]any)
	require.True(t, ok, "expected an error response, got %v", out)
	return int(e["code"].(float64)), e["message"].(string)
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	_, err := NewServer(Config{Resources: &fakeResources{}})
	assert.Error(t, err)
	_, err = NewServer(Config{Tools: newTestRouter(t)})
	assert.Error(t, err)
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t, Config{})

	out := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test","version":"0"}}}`)
	result := out["result"].(map[string]any)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])
	assert.Equal(t, "knowledge-bridge", result["serverInfo"].(map[string]any)["name"])
	caps := result["capabilities"].(map[string]any)
	assert.Contains(t, caps, "tools")
	assert.Contains(t, caps, "resources")

	out = roundTrip(t, s, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
	assert.Equal(t, latestProtocolVersion, out["result"].(map[string]any)["protocolVersion"])
}

func TestPing(t *testing.T) {
	s := newTestServer(t, Config{})
	out := roundTrip(t, s, `{"jsonrpc":"2.0","id":"abc","method":"ping"}`)
	assert.Equal(t, "abc", out["id"])
	assert.Equal(t, map[string]any{}, out["result"])
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t, Config{})
	out := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	tools := out["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "echo", tool["name"])
	assert.Contains(t, tool, "inputSchema")
}

func TestToolsCall(t *testing.T) {
	s := newTestServer(t, Config{})

	t.Run("success", func(t *testing.T) {
		out := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
		result := out["result"].(map[string]any)
		assert.NotContains(t, result, "isError")
		content := result["content"].([]any)[0].(map[string]any)
		assert.Equal(t, "text", content["type"])
		assert.JSONEq(t, `{"success":true,"tool":"echo","data":"hi"}`, content["text"].(string))
	})

	t.Run("handler failure is a result, not an RPC error", func(t *testing.T) {
		out := roundTrip(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"fail"}}}`)
		result := out["result"].(map[string]any)
		assert.Equal(t, true, result["isError"])
		text := result["content"].([]any)[0].(map[string]any)["text"].(string)
		assert.Contains(t, text, "echo refused")
	})

	t.Run("unknown tool is a result, not an RPC error", func(t *testing.T) {
		out := roundTrip(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"nope"}}`)
		result := out["result"].(map[string]any)
		assert.Equal(t, true, result["isError"])
		text := result["content"].([]any)[0].(map[string]any)["text"].(string)
		assert.Contains(t, text, "unknown tool: nope")
	})

	t.Run("missing name", func(t *testing.T) {
		code, _ := rpcError(t, roundTrip(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{}}`))
		assert.Equal(t, JSONRPCInvalidParams, code)
	})
}

func TestResources(t *testing.T) {
	s := newTestServer(t, Config{})

	out := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	list := out["result"].(map[string]any)["resources"].([]any)
	require.Len(t, list, 1)

	out = roundTrip(t, s, `{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"knowledge://system/health"}}`)
	contents := out["result"].(map[string]any)["contents"].([]any)
	require.Len(t, contents, 1)
	assert.Equal(t, `{"status":"healthy"}`, contents[0].(map[string]any)["text"])

	code, msg := rpcError(t, roundTrip(t, s, `{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"knowledge://nope"}}`))
	assert.Equal(t, JSONRPCInvalidParams, code)
	assert.Contains(t, msg, "knowledge://nope")
}

func TestResources_ReadFailureIsInternalError(t *testing.T) {
	s := newTestServer(t, Config{Resources: &fakeResources{readErr: errors.New("disk on fire")}})
	code, _ := rpcError(t, roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"knowledge://system/health"}}`))
	assert.Equal(t, JSONRPCInternalError, code)
}

func TestPromptsList(t *testing.T) {
	s := newTestServer(t, Config{})
	out := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`)
	assert.Equal(t, []any{}, out["result"].(map[string]any)["prompts"])
}

func TestNotificationsGetNoReply(t *testing.T) {
	s := newTestServer(t, Config{})
	assert.Nil(t, s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
}

func TestNullIDIsARequest(t *testing.T) {
	s := newTestServer(t, Config{})

	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":null,"method":"ping"}`))
	require.NotNil(t, resp)
	assert.Equal(t, "null", string(resp.ID))
	assert.Nil(t, resp.Error)
}

func TestProtocolErrors(t *testing.T) {
	s := newTestServer(t, Config{})

	code, _ := rpcError(t, roundTrip(t, s, `{not json`))
	assert.Equal(t, JSONRPCParseError, code)

	code, _ = rpcError(t, roundTrip(t, s, `{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	assert.Equal(t, JSONRPCInvalidRequest, code)

	code, _ = rpcError(t, roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"sampling/createMessage"}`))
	assert.Equal(t, JSONRPCMethodNotFound, code)
}

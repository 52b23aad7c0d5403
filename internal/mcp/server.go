// ABOUTME: MCP request handling independent of transport
// ABOUTME: Maps JSON-RPC methods onto the tool router and the resource catalog

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/knowledge-bridge/internal/auth"
	"github.com/2389/knowledge-bridge/internal/packs"
	"github.com/2389/knowledge-bridge/internal/resources"
)

// ToolRouter lists and runs tools. CallTool never fails; errors are
// reported inside the result.
type ToolRouter interface {
	ListTools() []packs.ToolDefinition
	CallTool(ctx context.Context, name string, args json.RawMessage) *packs.CallResult
}

// ResourceReader serves the resource catalog.
type ResourceReader interface {
	List() []resources.Resource
	Read(ctx context.Context, uri string) (*resources.Contents, error)
}

// Config holds configuration for the MCP server.
type Config struct {
	Tools     ToolRouter
	Resources ResourceReader
	Logger    *slog.Logger
	// TokenVerifier enables bearer authentication on the HTTP transport.
	TokenVerifier auth.TokenVerifier
	Name          string
	Version       string
	Instructions  string
}

// Server answers MCP requests for one bridge.
type Server struct {
	tools        ToolRouter
	resources    ResourceReader
	logger       *slog.Logger
	verifier     auth.TokenVerifier
	info         serverInfo
	instructions string
	sessions     *sessionStore
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Tools == nil {
		return nil, errors.New("tool router is required")
	}
	if cfg.Resources == nil {
		return nil, errors.New("resource reader is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "knowledge-bridge"
	}

	return &Server{
		tools:        cfg.Tools,
		resources:    cfg.Resources,
		logger:       logger.With("component", "mcp"),
		verifier:     cfg.TokenVerifier,
		info:         serverInfo{Name: name, Version: cfg.Version},
		instructions: cfg.Instructions,
		sessions:     newSessionStore(),
	}, nil
}

// Handle processes one raw JSON-RPC message. It returns nil for
// notifications, which get no reply.
func (s *Server) Handle(ctx context.Context, raw []byte) *JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nullID, JSONRPCParseError, "invalid JSON", nil)
	}
	return s.handleRequest(ctx, &req)
}

func (s *Server) handleRequest(ctx context.Context, req *JSONRPCRequest) (resp *JSONRPCResponse) {
	if req.IsNotification() {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		return nil
	}

	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("MCP handler panicked", "method", req.Method, "panic", rec)
			resp = errorResponse(req.ID, JSONRPCInternalError, "internal error", nil)
		}
	}()

	s.logger.Debug("MCP request", "method", req.Method)

	result, rpcErr := s.dispatch(ctx, req)
	if rpcErr != nil {
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req *JSONRPCRequest) (any, *JSONRPCError) {
	switch req.Method {
	case "initialize":
		return s.initialize(req)
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return listToolsResult{Tools: s.tools.ListTools()}, nil
	case "tools/call":
		return s.callTool(ctx, req)
	case "resources/list":
		return listResourcesResult{Resources: s.resources.List()}, nil
	case "resources/read":
		return s.readResource(ctx, req)
	case "prompts/list":
		return listPromptsResult{Prompts: []any{}}, nil
	default:
		return nil, &JSONRPCError{Code: JSONRPCMethodNotFound, Message: "method not found", Data: req.Method}
	}
}

func (s *Server) initialize(req *JSONRPCRequest) (any, *JSONRPCError) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}

	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	s.logger.Info("MCP client initialized",
		"client_name", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)

	return initializeResult{
		ProtocolVersion: version,
		Capabilities: map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": false, "listChanged": false},
			"prompts":   map[string]any{"listChanged": false},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) callTool(ctx context.Context, req *JSONRPCRequest) (any, *JSONRPCError) {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}
	if params.Name == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "tool name is required"}
	}

	result := s.tools.CallTool(ctx, params.Name, params.Arguments)
	s.logger.Debug("tools/call complete", "tool_name", params.Name, "is_error", result.IsError)
	return result, nil
}

func (s *Server) readResource(ctx context.Context, req *JSONRPCRequest) (any, *JSONRPCError) {
	var params readResourceParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}
	if params.URI == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "uri is required"}
	}

	contents, err := s.resources.Read(ctx, params.URI)
	if err != nil {
		if errors.Is(err, resources.ErrUnknownResource) {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: err.Error(), Data: map[string]string{"uri": params.URI}}
		}
		s.logger.Warn("resource read failed", "uri", params.URI, "error", err)
		return nil, &JSONRPCError{Code: JSONRPCInternalError, Message: fmt.Sprintf("reading %s failed", params.URI)}
	}
	return readResourceResult{Contents: []resources.Contents{*contents}}, nil
}

func errorResponse(id json.RawMessage, code int, message string, data any) *JSONRPCResponse {
	if len(id) == 0 {
		id = nullID
	}
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}
}

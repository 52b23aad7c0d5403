// ABOUTME: Cross-reference provider: links between notes and their wider connections
// ABOUTME: Link ids and target ids accept strings or integers like every note id

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
)

// CrossRefProvider creates the cross-reference provider.
func CrossRefProvider(api API) *packs.Pack {
	c := &crossRefHandlers{api: api}
	return packs.NewPack("crossref",
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "get_note_links",
				Description: "List links from, to, or around a note",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":` + idSchema + `,"direction":{"type":"string","enum":["outgoing","incoming","both"]}},"required":["id"]}`),
			},
			Handler: c.Links,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "create_note_link",
				Description: "Link one note to another",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":` + idSchema + `,"target_id":` + idSchema + `,"type":{"type":"string","description":"Link type, e.g. references"}},"required":["id","target_id"]}`),
			},
			Handler: c.CreateLink,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "delete_note_link",
				Description: "Remove the link between two notes",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":` + idSchema + `,"target_id":` + idSchema + `},"required":["id","target_id"]}`),
			},
			Handler: c.DeleteLink,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "get_note_connections",
				Description: "Get notes reachable from a note within depth hops",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":` + idSchema + `,"depth":{"type":"integer","minimum":1,"maximum":5}},"required":["id"]}`),
			},
			Handler: c.Connections,
		},
	)
}

type crossRefHandlers struct {
	api API
}

type linksInput struct {
	ID        noteID `json:"id"`
	Direction string `json:"direction"`
}

func (c *crossRefHandlers) Links(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in linksInput
	if err := decodeInput("get_note_links", input, &in); err != nil {
		return nil, err
	}
	if err := requireID("get_note_links", "id", in.ID); err != nil {
		return nil, err
	}
	if err := checkEnum("get_note_links", "direction", in.Direction, "outgoing", "incoming", "both"); err != nil {
		return nil, err
	}
	q := url.Values{}
	setString(q, "direction", in.Direction)
	return call(ctx, c.api, "get_note_links", projectPath(sess, "/notes/%s/links", in.ID.segment()), apiclient.RequestOptions{Query: q})
}

type linkInput struct {
	ID       noteID `json:"id"`
	TargetID noteID `json:"target_id"`
	Type     string `json:"type"`
}

func (in linkInput) validate(tool string) error {
	if err := requireID(tool, "id", in.ID); err != nil {
		return err
	}
	if err := requireID(tool, "target_id", in.TargetID); err != nil {
		return err
	}
	if in.ID == in.TargetID {
		return packs.Invalid(tool, "a note cannot link to itself")
	}
	return nil
}

func (c *crossRefHandlers) CreateLink(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in linkInput
	if err := decodeInput("create_note_link", input, &in); err != nil {
		return nil, err
	}
	if err := in.validate("create_note_link"); err != nil {
		return nil, err
	}
	body := map[string]string{"target_id": string(in.TargetID)}
	if in.Type != "" {
		body["type"] = in.Type
	}
	return call(ctx, c.api, "create_note_link", projectPath(sess, "/notes/%s/links", in.ID.segment()), apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   body,
	})
}

func (c *crossRefHandlers) DeleteLink(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in linkInput
	if err := decodeInput("delete_note_link", input, &in); err != nil {
		return nil, err
	}
	if err := in.validate("delete_note_link"); err != nil {
		return nil, err
	}
	return call(ctx, c.api, "delete_note_link",
		projectPath(sess, "/notes/%s/links/%s", in.ID.segment(), in.TargetID.segment()),
		apiclient.RequestOptions{Method: http.MethodDelete})
}

type connectionsInput struct {
	ID    noteID `json:"id"`
	Depth *int   `json:"depth"`
}

func (c *crossRefHandlers) Connections(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in connectionsInput
	if err := decodeInput("get_note_connections", input, &in); err != nil {
		return nil, err
	}
	if err := requireID("get_note_connections", "id", in.ID); err != nil {
		return nil, err
	}
	if err := checkRange("get_note_connections", "depth", in.Depth, 1, 5); err != nil {
		return nil, err
	}
	q := url.Values{}
	setInt(q, "depth", in.Depth)
	return call(ctx, c.api, "get_note_connections", projectPath(sess, "/notes/%s/connections", in.ID.segment()), apiclient.RequestOptions{Query: q})
}

// ABOUTME: Search provider: full-text note search and knowledge-graph search
// ABOUTME: Ranking is done by the remote API; this only shapes the query

package providers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
)

// SearchProvider creates the search provider.
func SearchProvider(api API) *packs.Pack {
	s := &searchHandlers{api: api}
	return packs.NewPack("search",
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "search_notes",
				Description: "Full-text search over the project's notes",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"folder":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer","minimum":1,"maximum":100}},"required":["query"]}`),
			},
			Handler: s.Notes,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "search_graph",
				Description: "Search the note graph, following links up to depth hops",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"depth":{"type":"integer","minimum":1,"maximum":5},"limit":{"type":"integer","minimum":1,"maximum":100}},"required":["query"]}`),
			},
			Handler: s.Graph,
		},
	)
}

type searchHandlers struct {
	api API
}

type searchNotesInput struct {
	Query  string   `json:"query"`
	Folder string   `json:"folder"`
	Tags   []string `json:"tags"`
	Limit  *int     `json:"limit"`
}

func (s *searchHandlers) Notes(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in searchNotesInput
	if err := decodeInput("search_notes", input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, packs.Invalid("search_notes", "query must not be empty")
	}
	if err := checkRange("search_notes", "limit", in.Limit, 1, 100); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("search", in.Query)
	setString(q, "folder", in.Folder)
	if len(in.Tags) > 0 {
		q.Set("tags", strings.Join(in.Tags, ","))
	}
	setInt(q, "limit", in.Limit)
	return call(ctx, s.api, "search_notes", projectPath(sess, "/notes"), apiclient.RequestOptions{Query: q})
}

type searchGraphInput struct {
	Query string `json:"query"`
	Depth *int   `json:"depth"`
	Limit *int   `json:"limit"`
}

func (s *searchHandlers) Graph(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in searchGraphInput
	if err := decodeInput("search_graph", input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, packs.Invalid("search_graph", "query must not be empty")
	}
	if err := checkRange("search_graph", "depth", in.Depth, 1, 5); err != nil {
		return nil, err
	}
	if err := checkRange("search_graph", "limit", in.Limit, 1, 100); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", in.Query)
	setInt(q, "depth", in.Depth)
	setInt(q, "limit", in.Limit)
	return call(ctx, s.api, "search_graph", projectPath(sess, "/search/graph"), apiclient.RequestOptions{Query: q})
}

// ABOUTME: Statistics provider: project totals and usage over a period
// ABOUTME: Both tools are thin reads; the remote API computes the numbers

package providers

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
)

// StatsProvider creates the statistics provider.
func StatsProvider(api API) *packs.Pack {
	s := &statsHandlers{api: api}
	return packs.NewPack("stats",
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "get_project_stats",
				Description: "Get note, folder and link counts for the project",
				InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
			},
			Handler: s.Project,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "get_usage_stats",
				Description: "Get API usage for the project",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"period":{"type":"string","enum":["day","week","month","all"]}}}`),
			},
			Handler: s.Usage,
		},
	)
}

type statsHandlers struct {
	api API
}

func (s *statsHandlers) Project(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	return call(ctx, s.api, "get_project_stats", projectPath(sess, "/stats"), apiclient.RequestOptions{})
}

type usageInput struct {
	Period string `json:"period"`
}

func (s *statsHandlers) Usage(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in usageInput
	if err := decodeInput("get_usage_stats", input, &in); err != nil {
		return nil, err
	}
	if err := checkEnum("get_usage_stats", "period", in.Period, "day", "week", "month", "all"); err != nil {
		return nil, err
	}
	q := url.Values{}
	setString(q, "period", in.Period)
	return call(ctx, s.api, "get_usage_stats", projectPath(sess, "/usage/stats"), apiclient.RequestOptions{Query: q})
}

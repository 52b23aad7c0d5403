// ABOUTME: Project provider: project metadata, folder statistics and the local session view
// ABOUTME: get_session_info answers without a network call and never exposes the credential

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

// ProjectProvider creates the project provider.
func ProjectProvider(api API) *packs.Pack {
	p := &projectHandlers{api: api}
	return packs.NewPack("project",
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "get_project_info",
				Description: "Get metadata for the current project",
				InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
			},
			Handler: p.Info,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "get_folder_stats",
				Description: "Get note statistics for one folder",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"folder":{"type":"string"}},"required":["folder"]}`),
			},
			Handler: p.FolderStats,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "get_session_info",
				Description: "Show which project and API this bridge is connected to",
				InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
			},
			Handler: p.Session,
		},
	)
}

type projectHandlers struct {
	api API
}

func (p *projectHandlers) Info(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	return call(ctx, p.api, "get_project_info", projectPath(sess, ""), apiclient.RequestOptions{})
}

type folderInput struct {
	Folder string `json:"folder"`
}

func (p *projectHandlers) FolderStats(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in folderInput
	if err := decodeInput("get_folder_stats", input, &in); err != nil {
		return nil, err
	}
	folder := strings.Trim(in.Folder, "/ ")
	if folder == "" {
		return nil, packs.Invalid("get_folder_stats", "folder must not be empty")
	}
	return call(ctx, p.api, "get_folder_stats", projectPath(sess, "/folders/%s/stats", url.PathEscape(folder)), apiclient.RequestOptions{})
}

func (p *projectHandlers) Session(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	return packs.Success("get_session_info", map[string]string{
		"project_id": sess.ProjectID,
		"base_url":   sess.BaseURL,
	}), nil
}

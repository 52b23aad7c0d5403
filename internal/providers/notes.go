// ABOUTME: Notes provider: create, read, update, replace, delete and list notes
// ABOUTME: get_note can render the markdown body to HTML with goldmark

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/yuin/goldmark"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
)

// NotesProvider creates the notes provider.
func NotesProvider(api API) *packs.Pack {
	n := &notesHandlers{api: api}
	return packs.NewPack("notes",
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "create_note",
				Description: "Create a note in the current project",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"content":{"type":"string","description":"Markdown body"},"folder":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}}},"required":["title"]}`),
			},
			Handler: n.Create,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "get_note",
				Description: "Fetch a note by id",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":` + idSchema + `,"format":{"type":"string","enum":["markdown","html"]}},"required":["id"]}`),
			},
			Handler: n.Get,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "update_note",
				Description: "Change some fields of a note",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":` + idSchema + `,"title":{"type":"string"},"content":{"type":"string"},"folder":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}}},"required":["id"]}`),
			},
			Handler: n.Update,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "replace_note",
				Description: "Replace a note's title and content",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":` + idSchema + `,"title":{"type":"string"},"content":{"type":"string"},"folder":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}}},"required":["id","title","content"]}`),
			},
			Handler: n.Replace,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "delete_note",
				Description: "Delete a note",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":` + idSchema + `},"required":["id"]}`),
			},
			Handler: n.Delete,
		},
		&packs.Tool{
			Definition: packs.ToolDefinition{
				Name:        "list_notes",
				Description: "List notes, optionally filtered by folder or tag",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"folder":{"type":"string"},"tag":{"type":"string"},"limit":{"type":"integer","minimum":1,"maximum":100},"offset":{"type":"integer","minimum":0}}}`),
			},
			Handler: n.List,
		},
	)
}

type notesHandlers struct {
	api API
}

type noteFields struct {
	Title   *string  `json:"title,omitempty"`
	Content *string  `json:"content,omitempty"`
	Folder  *string  `json:"folder,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

func (f noteFields) empty() bool {
	return f.Title == nil && f.Content == nil && f.Folder == nil && f.Tags == nil
}

type noteInput struct {
	ID noteID `json:"id"`
	noteFields
}

func (n *notesHandlers) Create(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in noteFields
	if err := decodeInput("create_note", input, &in); err != nil {
		return nil, err
	}
	if in.Title == nil || *in.Title == "" {
		return nil, packs.Invalid("create_note", "title must not be empty")
	}
	return call(ctx, n.api, "create_note", projectPath(sess, "/notes"), apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   in,
	})
}

type getNoteInput struct {
	ID     noteID `json:"id"`
	Format string `json:"format"`
}

func (n *notesHandlers) Get(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in getNoteInput
	if err := decodeInput("get_note", input, &in); err != nil {
		return nil, err
	}
	if err := requireID("get_note", "id", in.ID); err != nil {
		return nil, err
	}
	if err := checkEnum("get_note", "format", in.Format, "markdown", "html"); err != nil {
		return nil, err
	}

	resp, err := n.api.Request(ctx, projectPath(sess, "/notes/%s", in.ID.segment()), apiclient.RequestOptions{})
	if err != nil {
		return nil, err
	}
	data := resp.Data()
	if in.Format == "html" {
		data, err = withHTML(data)
		if err != nil {
			return nil, err
		}
	}
	return packs.Success("get_note", data), nil
}

// withHTML adds content_html to a note object that has a string content field.
func withHTML(data any) (any, error) {
	raw, ok := data.(json.RawMessage)
	if !ok {
		return data, nil
	}
	var note map[string]any
	if err := json.Unmarshal(raw, &note); err != nil {
		return data, nil
	}
	content, ok := note["content"].(string)
	if !ok {
		return data, nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return nil, fmt.Errorf("rendering note content: %w", err)
	}
	note["content_html"] = buf.String()
	return note, nil
}

func (n *notesHandlers) Update(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in noteInput
	if err := decodeInput("update_note", input, &in); err != nil {
		return nil, err
	}
	if err := requireID("update_note", "id", in.ID); err != nil {
		return nil, err
	}
	if in.empty() {
		return nil, packs.Invalid("update_note", "at least one of title, content, folder or tags is required")
	}
	return call(ctx, n.api, "update_note", projectPath(sess, "/notes/%s", in.ID.segment()), apiclient.RequestOptions{
		Method: http.MethodPatch,
		Body:   in.noteFields,
	})
}

func (n *notesHandlers) Replace(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in noteInput
	if err := decodeInput("replace_note", input, &in); err != nil {
		return nil, err
	}
	if err := requireID("replace_note", "id", in.ID); err != nil {
		return nil, err
	}
	return call(ctx, n.api, "replace_note", projectPath(sess, "/notes/%s", in.ID.segment()), apiclient.RequestOptions{
		Method: http.MethodPut,
		Body:   in.noteFields,
	})
}

func (n *notesHandlers) Delete(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in noteInput
	if err := decodeInput("delete_note", input, &in); err != nil {
		return nil, err
	}
	if err := requireID("delete_note", "id", in.ID); err != nil {
		return nil, err
	}

	resp, err := n.api.Request(ctx, projectPath(sess, "/notes/%s", in.ID.segment()), apiclient.RequestOptions{
		Method: http.MethodDelete,
	})
	if err != nil {
		return nil, err
	}
	data := resp.Data()
	if !resp.IsJSON() && resp.Text == "" {
		data = map[string]any{"id": string(in.ID), "deleted": true}
	}
	return packs.Success("delete_note", data), nil
}

type listNotesInput struct {
	Folder string `json:"folder"`
	Tag    string `json:"tag"`
	Limit  *int   `json:"limit"`
	Offset *int   `json:"offset"`
}

func (n *notesHandlers) List(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error) {
	var in listNotesInput
	if err := decodeInput("list_notes", input, &in); err != nil {
		return nil, err
	}
	if err := checkRange("list_notes", "limit", in.Limit, 1, 100); err != nil {
		return nil, err
	}
	if err := checkRange("list_notes", "offset", in.Offset, 0, 1<<30); err != nil {
		return nil, err
	}

	q := url.Values{}
	setString(q, "folder", in.Folder)
	setString(q, "tag", in.Tag)
	setInt(q, "limit", in.Limit)
	setInt(q, "offset", in.Offset)
	return call(ctx, n.api, "list_notes", projectPath(sess, "/notes"), apiclient.RequestOptions{Query: q})
}

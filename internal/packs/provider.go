// ABOUTME: Capability provider contract and the schema-driven Pack implementation
// ABOUTME: A Pack checks required arguments against each tool's JSON schema before running its handler

package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/2389/knowledge-bridge/internal/identity"
)

// ToolDefinition describes one tool as listed to clients.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Provider owns a fixed set of tools.
type Provider interface {
	ID() string
	ListTools() []ToolDefinition
	Owns(name string) bool
	Invoke(ctx context.Context, name string, args json.RawMessage, sess *identity.Session) (any, error)
}

// ToolHandler executes a tool. input is always a JSON object.
type ToolHandler func(ctx context.Context, sess *identity.Session, input json.RawMessage) (any, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

// Pack is a Provider built from a static list of tools.
type Pack struct {
	id       string
	tools    []*Tool
	byName   map[string]*Tool
	required map[string][]string
	now      func() time.Time
}

// NewPack creates a pack. Later tools with a repeated name are still listed
// so the registry can report the collision.
func NewPack(id string, tools ...*Tool) *Pack {
	p := &Pack{
		id:       id,
		tools:    tools,
		byName:   make(map[string]*Tool, len(tools)),
		required: make(map[string][]string, len(tools)),
		now:      time.Now,
	}
	for _, t := range tools {
		name := t.Definition.Name
		if _, dup := p.byName[name]; dup {
			continue
		}
		p.byName[name] = t
		p.required[name] = requiredFields(t.Definition.InputSchema)
	}
	return p
}

// ID returns the pack identifier.
func (p *Pack) ID() string { return p.id }

// ListTools returns the definitions in declaration order.
func (p *Pack) ListTools() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(p.tools))
	for _, t := range p.tools {
		defs = append(defs, t.Definition)
	}
	return defs
}

// Owns reports whether name is one of this pack's tools.
func (p *Pack) Owns(name string) bool {
	_, ok := p.byName[name]
	return ok
}

// Invoke validates args and runs the tool's handler. Handler failures come
// back as *ToolError; argument problems as *ValidationError.
func (p *Pack) Invoke(ctx context.Context, name string, args json.RawMessage, sess *identity.Session) (any, error) {
	tool, ok := p.byName[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	input, err := p.validate(name, args)
	if err != nil {
		return nil, err
	}

	result, err := tool.Handler(ctx, sess, input)
	if err != nil {
		var invalid *ValidationError
		if errors.As(err, &invalid) {
			return nil, invalid
		}
		return nil, &ToolError{Tool: name, Err: err, Timestamp: p.now()}
	}
	return result, nil
}

// validate normalizes empty arguments to {} and checks required keys.
func (p *Pack) validate(name string, args json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &ValidationError{Tool: name, Reason: "arguments must be a JSON object"}
	}

	var missing []string
	for _, key := range p.required[name] {
		v, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Tool: name, Missing: missing}
	}
	return trimmed, nil
}

// requiredFields reads the top-level "required" list of a JSON schema.
func requiredFields(schema json.RawMessage) []string {
	var s struct {
		Required []string `json:"required"`
	}
	if len(schema) == 0 || json.Unmarshal(schema, &s) != nil {
		return nil
	}
	return s.Required
}

var _ Provider = (*Pack)(nil)

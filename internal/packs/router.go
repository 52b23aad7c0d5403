// ABOUTME: Routes tool calls to the owning provider and normalizes results into one envelope shape
// ABOUTME: CallTool never returns an error; every failure becomes an isError result

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/telemetry"
)

// Content is one item of a call result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the envelope returned for every tool call.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Router dispatches tool calls for a single session.
type Router struct {
	registry *Registry
	session  *identity.Session
	logger   *slog.Logger
	observer *telemetry.Observer
	now      func() time.Time
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Session  *identity.Session
	Logger   *slog.Logger
	Observer *telemetry.Observer
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: cfg.Registry,
		session:  cfg.Session,
		logger:   logger.With("component", "router"),
		observer: cfg.Observer,
		now:      time.Now,
	}
}

// ListTools returns every tool of every provider.
func (r *Router) ListTools() []ToolDefinition {
	return r.registry.ListAllTools()
}

// Dispatch runs a tool and returns the provider's raw result. A panic in
// the provider is returned as a *ToolError.
func (r *Router) Dispatch(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	provider := r.registry.Lookup(name)
	if provider == nil {
		return nil, &UnknownToolError{Name: name}
	}

	r.logger.Info("→ dispatching tool", "tool_name", name, "provider_id", provider.ID())

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("provider panicked", "tool_name", name, "provider_id", provider.ID(), "panic", rec)
			result = nil
			err = &ToolError{Tool: name, Err: fmt.Errorf("internal error: %v", rec), Timestamp: r.now()}
		}
	}()

	return provider.Invoke(ctx, name, args, r.session)
}

// CallTool dispatches and wraps the outcome in a CallResult.
func (r *Router) CallTool(ctx context.Context, name string, args json.RawMessage) *CallResult {
	ctx, span := r.observer.Start(ctx, "tool.call", attribute.String("tool_name", name))
	defer span.End()

	start := r.now()
	result, err := r.Dispatch(ctx, name, args)
	if err != nil {
		r.logger.Warn("tool call failed", "tool_name", name, "error", err, "duration", time.Since(start))
		r.observer.ObserveToolCall(ctx, span, name, true, err.Error())
		return r.errorResult(name, err)
	}

	text, err := json.Marshal(result)
	if err != nil {
		r.observer.ObserveToolCall(ctx, span, name, true, err.Error())
		return r.errorResult(name, fmt.Errorf("encoding result: %w", err))
	}

	r.logger.Info("← tool responded", "tool_name", name, "duration", time.Since(start))
	r.observer.ObserveToolCall(ctx, span, name, false, "")
	return &CallResult{Content: []Content{{Type: "text", Text: string(text)}}}
}

func (r *Router) errorResult(name string, err error) *CallResult {
	var payload map[string]any
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		payload = toolErr.Payload()
	} else {
		payload = map[string]any{
			"error":     err.Error(),
			"tool":      name,
			"timestamp": r.now().UTC().Format(time.RFC3339),
		}
	}
	text, _ := json.Marshal(payload)
	return &CallResult{
		Content: []Content{{Type: "text", Text: string(text)}},
		IsError: true,
	}
}

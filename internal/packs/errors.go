// ABOUTME: Error taxonomy for tool routing and provider invocation
// ABOUTME: Every error here is turned into a structured result at the protocol boundary

package packs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrToolCollision is returned when two tools share a name.
	ErrToolCollision = errors.New("tool name collision")
	// ErrUnknownTool matches every *UnknownToolError.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid tool arguments")
)

// UnknownToolError is returned when no provider owns a tool name.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}

// ValidationError reports missing or malformed arguments. It is raised
// before any network call.
type ValidationError struct {
	Tool    string
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required argument(s) for %s: %s", e.Tool, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ToolError wraps a failure inside a provider's tool handler.
type ToolError struct {
	Tool      string
	Err       error
	Timestamp time.Time
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Payload is the provider failure shape.
func (e *ToolError) Payload() map[string]any {
	return map[string]any{
		"success":   false,
		"error":     e.Err.Error(),
		"tool":      e.Tool,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Invalid builds a ValidationError for handlers that check argument values.
func Invalid(tool, format string, args ...any) error {
	return &ValidationError{Tool: tool, Reason: fmt.Sprintf(format, args...)}
}

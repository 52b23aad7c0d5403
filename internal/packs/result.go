// ABOUTME: Success result shape shared by every provider
// ABOUTME: Failures use ToolError.Payload or the router error shape instead

package packs

// Success is the provider success shape.
func Success(tool string, data any) map[string]any {
	return map[string]any{
		"success": true,
		"tool":    tool,
		"data":    data,
	}
}

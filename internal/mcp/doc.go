// Package mcp serves the bridge's tools and resources over the Model
// Context Protocol.
//
// # Transports
//
// stdio is the default: one JSON-RPC 2.0 message per line on stdin, one
// reply per line on stdout. Logs go to stderr so they never corrupt the
// stream.
//
// The HTTP transport exposes a single endpoint:
//
//   - POST /mcp    JSON-RPC message; initialize returns Mcp-Session-Id
//   - DELETE /mcp  terminate the session named by Mcp-Session-Id
//
// When mcp.jwt_secret is set every HTTP request needs
//
//	Authorization: Bearer <token>
//
// and a session can only be used by the subject that created it.
//
// # Methods
//
//   - initialize, ping
//   - tools/list, tools/call
//   - resources/list, resources/read
//   - prompts/list (always empty)
//
// Notifications (messages without an id) are accepted and never answered.
// A failing tool is reported inside a successful tools/call result with
// isError set; an unknown resource URI is a JSON-RPC error.
//
// # Example
//
//	{"jsonrpc":"2.0","id":2,"method":"tools/call",
//	 "params":{"name":"search_notes","arguments":{"query":"retry policy"}}}
package mcp

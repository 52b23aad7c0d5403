// Package packs routes tool calls to capability providers.
//
// # Overview
//
// A Provider owns a fixed set of tools. Pack is the usual implementation: a
// static list of tool definitions, each with a JSON schema and a handler.
// The Registry keeps providers in registration order and refuses a second
// tool with an already registered name, so collisions surface at startup.
//
// # Routing
//
// Router.Dispatch finds the first provider that owns the name and invokes
// it. Router.CallTool wraps the outcome:
//
//	{"content":[{"type":"text","text":"<JSON result>"}]}
//	{"content":[{"type":"text","text":"{\"error\":...,\"tool\":...,\"timestamp\":...}"}],"isError":true}
//
// Unknown tools, invalid arguments, provider errors and provider panics all
// take the second form. CallTool has no error return.
package packs

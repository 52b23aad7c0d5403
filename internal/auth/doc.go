// Package auth authenticates clients of the bridge's HTTP transport.
//
// Clients send an HS256 JWT signed with mcp.jwt_secret:
//
//	Authorization: Bearer <token>
//
// The token's "sub" claim names the caller. An optional "prj" claim pins
// the token to one project; a bridge bound to a different project rejects
// it. The stdio transport is not authenticated: whoever spawned the process
// already owns it.
//
// Mint a token for local testing with:
//
//	v := auth.NewJWTVerifier(secret, "")
//	token, err := v.Generate("laptop", "myproject", 24*time.Hour)
package auth

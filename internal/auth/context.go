// ABOUTME: Request context helpers carrying the verified token claims
// ABOUTME: Set by the bearer middleware, read by protocol handlers

package auth

import (
	"context"
)

type claimsKey struct{}

// WithClaims returns a new context with claims attached.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims attached to ctx, or nil.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

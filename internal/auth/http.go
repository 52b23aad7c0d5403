// ABOUTME: HTTP middleware for bearer-token authentication
// ABOUTME: Verifies the Authorization header and stores the claims in the request context

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Bearer header errors
var (
	ErrMissingAuthorization   = errors.New("missing authorization header")
	ErrMalformedAuthorization = errors.New("invalid authorization header format")
)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthorization
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMalformedAuthorization
	}
	return strings.TrimSpace(token), nil
}

// Authenticate verifies the request's bearer token.
func Authenticate(r *http.Request, verifier TokenVerifier) (*Claims, error) {
	token, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return verifier.Verify(token)
}

// Middleware rejects requests without a valid bearer token with 401 and
// passes the claims to next through the request context.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := Authenticate(r, verifier)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="knowledge-bridge"`)
				http.Error(w, `{"error":"`+message(err)+`"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func message(err error) string {
	switch {
	case errors.Is(err, ErrMissingAuthorization), errors.Is(err, ErrMalformedAuthorization):
		return err.Error()
	case errors.Is(err, ErrExpiredToken):
		return "token expired"
	case errors.Is(err, ErrWrongProject):
		return "token is bound to another project"
	default:
		return "invalid token"
	}
}

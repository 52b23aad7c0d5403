// ABOUTME: JWT verification for clients of the HTTP protocol transport
// ABOUTME: HS256 tokens carrying a subject and an optional project binding

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWrongProject = errors.New("token is bound to another project")
)

// projectClaim names the claim that pins a token to one project.
const projectClaim = "prj"

// Claims is what a verified token asserts.
type Claims struct {
	Subject string
	Project string
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs. When
// project is set, tokens that name a different project are rejected;
// tokens without a project claim are accepted.
type JWTVerifier struct {
	secret  []byte
	project string
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte, project string) *JWTVerifier {
	return &JWTVerifier{secret: secret, project: project}
}

// Verify validates the token and extracts its claims
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := mc["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	claims := &Claims{Subject: sub}
	if prj, ok := mc[projectClaim].(string); ok {
		claims.Project = prj
	}
	if v.project != "" && claims.Project != "" && claims.Project != v.project {
		return nil, fmt.Errorf("%w: %s", ErrWrongProject, claims.Project)
	}
	return claims, nil
}

// Generate creates a token for subject that expires after expiresIn. An
// empty project leaves the token unbound.
func (v *JWTVerifier) Generate(subject, project string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	if project != "" {
		claims[projectClaim] = project
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

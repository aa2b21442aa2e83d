// Package auth verifies the bearer tokens that identify users on the HTTP
// and WebSocket surfaces. Two verification modes are supported: HS256 with
// a shared secret and RS256 against configured JWKS endpoints. With
// verification disabled (development), tokens are parsed but not checked.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing verified claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw token string.
	TokenKey contextKey = "token"
)

// Claims is the token payload the engine cares about. The subject is the
// user id every session, memory record and profile is keyed by.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// GetClaims retrieves verified claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// UserIDFromContext returns the authenticated user id, or "" when the
// request carries no verified identity.
func UserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}

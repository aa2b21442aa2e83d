package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// devUserHeader supplies an identity when verification is disabled and no
// token is presented at all. Ignored in verified mode.
const devUserHeader = "X-User-ID"

// Middleware authenticates HTTP requests with a bearer token and injects
// the verified claims into the request context.
type Middleware struct {
	verifier TokenVerifier
	devMode  bool
	logger   *zap.Logger
}

// NewMiddleware creates an auth middleware. devMode permits the
// X-User-ID fallback for local development.
func NewMiddleware(verifier TokenVerifier, devMode bool, logger *zap.Logger) *Middleware {
	return &Middleware{
		verifier: verifier,
		devMode:  devMode,
		logger:   logger,
	}
}

// RequireAuth validates the bearer token and sets claims in the context.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := BearerToken(r)
		if tokenString == "" {
			if m.devMode {
				if userID := r.Header.Get(devUserHeader); userID != "" {
					ctx := context.WithValue(r.Context(), ClaimsKey, devClaims(userID))
					next(w, r.WithContext(ctx))
					return
				}
			}
			m.unauthorized(w, "Authentication required")
			return
		}

		claims, err := m.verifier.VerifyToken(tokenString)
		if err != nil {
			m.logger.Debug("token rejected", zap.Error(err))
			m.unauthorized(w, "Authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, tokenString)
		next(w, r.WithContext(ctx))
	}
}

// BearerToken extracts the token from the Authorization header, or from
// the "token" query parameter as the WebSocket handshake fallback.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func devClaims(userID string) *Claims {
	c := &Claims{}
	c.Subject = userID
	return c
}

// unauthorized returns a 401 response with a JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

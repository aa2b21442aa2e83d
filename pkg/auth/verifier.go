package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*Claims, error)
}

// VerifierConfig configures token verification.
type VerifierConfig struct {
	// EnableVerification controls whether signatures are checked. When
	// false, tokens are parsed without verification (development mode).
	EnableVerification bool
	// JWTSecret enables the HS256 shared-secret mode when set.
	JWTSecret string
	// JWKSEndpoints maps issuer URLs to JWKS endpoint URLs. Only tokens
	// from issuers in this map are accepted in RS256 mode.
	JWKSEndpoints map[string]string
}

// Verifier implements TokenVerifier for both supported modes. The shared
// secret takes precedence when both are configured.
type Verifier struct {
	config    *VerifierConfig
	endpoints map[string]keyfunc.Keyfunc
}

// NewVerifier creates a token verifier. In RS256 mode the JWKS documents
// are fetched eagerly so misconfigured endpoints fail at startup.
func NewVerifier(config *VerifierConfig) (*Verifier, error) {
	v := &Verifier{
		config:    config,
		endpoints: make(map[string]keyfunc.Keyfunc),
	}

	if !config.EnableVerification || config.JWTSecret != "" {
		return v, nil
	}

	for issuer, jwksURL := range config.JWKSEndpoints {
		jwks, err := keyfunc.NewDefaultCtx(context.Background(), []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to load JWKS for issuer %s: %w", issuer, err)
		}
		v.endpoints[issuer] = jwks
	}
	return v, nil
}

var _ TokenVerifier = (*Verifier)(nil)

// VerifyToken validates the token and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if !v.config.EnableVerification {
		return v.parseUnverified(tokenString)
	}
	if v.config.JWTSecret != "" {
		return v.verifyHMAC(tokenString)
	}
	return v.verifyJWKS(tokenString)
}

func (v *Verifier) verifyHMAC(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.config.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	return claimsOf(token)
}

func (v *Verifier) verifyJWKS(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			return nil, errors.New("invalid claims type")
		}

		jwks, exists := v.endpoints[claims.Issuer]
		if !exists {
			return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
		}
		return jwks.KeyfuncCtx(context.Background())(token)
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	return claimsOf(token)
}

// parseUnverified parses a token without checking its signature. Used in
// development mode only.
func (v *Verifier) parseUnverified(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claimsOf(token)
}

func claimsOf(token *jwt.Token) (*Claims, error) {
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

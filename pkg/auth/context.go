package auth

import (
	"context"
	"fmt"
)

// RequireUserIDFromContext returns the authenticated user id or an error
// when the request carries no verified identity.
func RequireUserIDFromContext(ctx context.Context) (string, error) {
	userID := UserIDFromContext(ctx)
	if userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

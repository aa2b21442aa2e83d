package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/auth"
	"github.com/datapilot-ai/datapilot-engine/pkg/testhelpers"
)

func newTestMiddleware(t *testing.T, devMode bool) *auth.Middleware {
	t.Helper()
	v, err := auth.NewVerifier(&auth.VerifierConfig{
		EnableVerification: true,
		JWTSecret:          "test-secret",
	})
	require.NoError(t, err)
	return auth.NewMiddleware(v, devMode, zap.NewNop())
}

func echoUserID(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(userID))
}

func TestRequireAuth_ValidToken(t *testing.T) {
	m := newTestMiddleware(t, false)

	token, err := testhelpers.GenerateSignedTestJWT("user-1", "", "test-secret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	m.RequireAuth(echoUserID)(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestRequireAuth_MissingToken(t *testing.T) {
	m := newTestMiddleware(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()

	m.RequireAuth(echoUserID)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication required")
}

func TestRequireAuth_BadToken(t *testing.T) {
	m := newTestMiddleware(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()

	m.RequireAuth(echoUserID)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_DevHeaderFallback(t *testing.T) {
	m := newTestMiddleware(t, true)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-User-ID", "dev-user")
	rec := httptest.NewRecorder()

	m.RequireAuth(echoUserID)(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev-user", rec.Body.String())
}

func TestRequireAuth_DevHeaderIgnoredInVerifiedMode(t *testing.T) {
	m := newTestMiddleware(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-User-ID", "dev-user")
	rec := httptest.NewRecorder()

	m.RequireAuth(echoUserID)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken_QueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	assert.Equal(t, "abc", auth.BearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", auth.BearerToken(req))
}

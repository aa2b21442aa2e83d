package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/datapilot-engine/pkg/auth"
	"github.com/datapilot-ai/datapilot-engine/pkg/testhelpers"
)

func TestVerifyToken_HMAC(t *testing.T) {
	v, err := auth.NewVerifier(&auth.VerifierConfig{
		EnableVerification: true,
		JWTSecret:          "test-secret",
	})
	require.NoError(t, err)

	token, err := testhelpers.GenerateSignedTestJWT("user-1", "u@example.com", "test-secret")
	require.NoError(t, err)

	claims, err := v.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "u@example.com", claims.Email)
}

func TestVerifyToken_HMAC_WrongSecret(t *testing.T) {
	v, err := auth.NewVerifier(&auth.VerifierConfig{
		EnableVerification: true,
		JWTSecret:          "test-secret",
	})
	require.NoError(t, err)

	token, err := testhelpers.GenerateSignedTestJWT("user-1", "", "other-secret")
	require.NoError(t, err)

	_, err = v.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_HMAC_RejectsUnsigned(t *testing.T) {
	v, err := auth.NewVerifier(&auth.VerifierConfig{
		EnableVerification: true,
		JWTSecret:          "test-secret",
	})
	require.NoError(t, err)

	_, err = v.VerifyToken(testhelpers.GenerateTestJWT("user-1", ""))
	assert.Error(t, err, "alg none must never pass verification")
}

func TestVerifyToken_DevModeParsesWithoutSignature(t *testing.T) {
	v, err := auth.NewVerifier(&auth.VerifierConfig{EnableVerification: false})
	require.NoError(t, err)

	claims, err := v.VerifyToken(testhelpers.GenerateTestJWT("user-1", "u@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestVerifyToken_MissingSubjectRejected(t *testing.T) {
	v, err := auth.NewVerifier(&auth.VerifierConfig{EnableVerification: false})
	require.NoError(t, err)

	_, err = v.VerifyToken(testhelpers.GenerateTestJWT("", ""))
	assert.Error(t, err)
}

func TestVerifyToken_GarbageRejected(t *testing.T) {
	v, err := auth.NewVerifier(&auth.VerifierConfig{EnableVerification: false})
	require.NoError(t, err)

	_, err = v.VerifyToken("not-a-token")
	assert.Error(t, err)
}

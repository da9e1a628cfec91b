package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	v := NewVerifier("top-secret", "rl")
	token := signToken(t, "top-secret", jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"rl":  120,
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.Subject)
	assert.Equal(t, 120, claims.RateLimitOverride)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("top-secret", "rl")
	token := signToken(t, "top-secret", jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v := NewVerifier("top-secret", "rl")
	token := signToken(t, "wrong-secret", jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := NewVerifier("top-secret", "rl")
	token := signToken(t, "top-secret", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestSetSecretSwapsSigningKeyForNewRequests(t *testing.T) {
	v := NewVerifier("old-secret", "rl")
	oldToken := signToken(t, "old-secret", jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err := v.Verify(oldToken)
	require.NoError(t, err)

	v.SetSecret("new-secret")

	_, err = v.Verify(oldToken)
	assert.Error(t, err, "a token signed with the rotated-out secret must be rejected")

	newToken := signToken(t, "new-secret", jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = v.Verify(newToken)
	assert.NoError(t, err)
}

func TestExtractBearerToken(t *testing.T) {
	tok, ok := ExtractBearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", tok)

	_, ok = ExtractBearerToken("abc.def.ghi")
	assert.False(t, ok)

	_, ok = ExtractBearerToken("")
	assert.False(t, ok)
}

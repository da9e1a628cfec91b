package acme

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gemini-relay/internal/config"
	"gemini-relay/internal/tlsfront"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresDomains(t *testing.T) {
	_, err := New(config.TLSConfig{Mode: "acme"}, tlsfront.NewSlot())
	assert.Error(t, err)
}

func TestNewStartsIdle(t *testing.T) {
	m, err := New(config.TLSConfig{
		Mode:        "acme",
		ACMEDomains: []string{"relay.example.com"},
		ACMEEmail:   "ops@example.com",
	}, tlsfront.NewSlot())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, m.State())
}

func TestChallengeHandlerServes404ForUnknownPath(t *testing.T) {
	m, err := New(config.TLSConfig{
		Mode:        "acme",
		ACMEDomains: []string{"relay.example.com"},
	}, tlsfront.NewSlot())
	require.NoError(t, err)
	handler := m.ChallengeHandler()
	require.NotNil(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/not-a-challenge", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

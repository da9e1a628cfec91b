package upstream

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gemini-relay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteSetsHostKeyAndStripsAuth(t *testing.T) {
	d := New(config.UpstreamConfig{Host: "generativelanguage.googleapis.com", Port: 443})

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-pro:generateContent", nil)
	req.Header.Set("Authorization", "Bearer client-token")

	d.Rewrite(req, "api-key-1")

	assert.Equal(t, "generativelanguage.googleapis.com", req.Host)
	assert.Equal(t, "api-key-1", req.Header.Get("x-goog-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "/v1beta/models/gemini-pro:generateContent", req.URL.Path)
}

func TestNewBuildsPooledClient(t *testing.T) {
	d := New(config.UpstreamConfig{Host: "generativelanguage.googleapis.com", Port: 443})
	require.NotNil(t, d.client)
	assert.Equal(t, "generativelanguage.googleapis.com", d.Target.Host)
}

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"gemini-relay/internal/auth"
	"gemini-relay/internal/config"
	"gemini-relay/internal/pipeline"
	"gemini-relay/internal/ratelimit"
	"gemini-relay/internal/tlsfront"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	cfg := &config.Snapshot{
		MetricsPath: "/metrics",
		Server:      config.ServerConfig{ListenAddr: ":0", ACMEListenAddr: ":0"},
	}
	return New(cfg, &pipeline.Handler{}, auth.NewVerifier("secret", "rl"), ratelimit.New(60), tlsfront.NewSlot(), nil)
}

func TestHealthEndpointBypassesAuth(t *testing.T) {
	s := newTestServer()
	engine := s.buildDataEngine()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpointBypassesAuth(t *testing.T) {
	s := newTestServer()
	engine := s.buildDataEngine()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsRouteOmittedFromDataEngineWhenSeparatePortConfigured(t *testing.T) {
	cfg := &config.Snapshot{
		MetricsPath: "/metrics",
		MetricsAddr: ":9100",
		Server:      config.ServerConfig{ListenAddr: ":0", ACMEListenAddr: ":0"},
	}
	s := New(cfg, &pipeline.Handler{}, auth.NewVerifier("secret", "rl"), ratelimit.New(60), tlsfront.NewSlot(), nil)
	engine := s.buildDataEngine()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code, "metrics must move off the data-plane engine once a dedicated metrics_addr is set")
}

func TestStartReturnsErrorOnListenerConflict(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := &config.Snapshot{
		MetricsPath: "/metrics",
		Server:      config.ServerConfig{ListenAddr: occupied.Addr().String(), ACMEListenAddr: ":0"},
	}
	s := New(cfg, &pipeline.Handler{}, auth.NewVerifier("secret", "rl"), ratelimit.New(60), tlsfront.NewSlot(), nil)

	err = s.Start(context.Background())
	assert.Error(t, err, "Start must report a bind failure instead of only logging it from a goroutine")
}

func TestOtherPathsRequireAuth(t *testing.T) {
	s := newTestServer()
	engine := s.buildDataEngine()

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-pro:generateContent", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

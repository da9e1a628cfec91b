// Package server assembles the gin engines and net/http listeners that
// make up the proxy's external interfaces (§6): the TLS data-plane
// listener, the plaintext ACME HTTP-01 listener, and the two
// auth-exempt endpoints (/health, /metrics).
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"gemini-relay/internal/acme"
	"gemini-relay/internal/auth"
	"gemini-relay/internal/config"
	"gemini-relay/internal/middleware"
	"gemini-relay/internal/pipeline"
	"gemini-relay/internal/ratelimit"
	"gemini-relay/internal/tlsfront"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server owns the data-plane HTTPS listener, in ACME mode the plaintext
// HTTP-01 challenge listener, and, when MetricsAddr is set, the plaintext
// metrics listener.
type Server struct {
	cfg       *config.Snapshot
	pipeline  *pipeline.Handler
	verifier  *auth.Verifier
	limiter   *ratelimit.Limiter
	tlsSlot   *tlsfront.Slot
	acmeMgr   *acme.Manager

	httpsSrv   *http.Server
	acmeSrv    *http.Server
	metricsSrv *http.Server
}

// New builds a Server from its already-constructed collaborators. acmeMgr
// may be nil when TLS is in static-certificate mode.
func New(cfg *config.Snapshot, h *pipeline.Handler, verifier *auth.Verifier, limiter *ratelimit.Limiter, slot *tlsfront.Slot, acmeMgr *acme.Manager) *Server {
	return &Server{cfg: cfg, pipeline: h, verifier: verifier, limiter: limiter, tlsSlot: slot, acmeMgr: acmeMgr}
}

// buildDataEngine wires the always-public /health and /metrics routes
// ahead of the authenticated, rate-limited passthrough catch-all, mirroring
// the teacher's applyStandardEngineSettings layering of Recovery/RequestID
// before route-specific middleware.
func (s *Server) buildDataEngine() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	_ = engine.SetTrustedProxies(nil)
	engine.Use(middleware.Recovery(), middleware.RequestID())

	engine.GET("/health", healthHandler)
	if s.cfg.MetricsAddr == "" {
		engine.GET(s.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	// A single wildcard route forwards every other path/method through to
	// the pipeline (§6: "forwards all paths and methods transparently");
	// gin's router gives the static /health and metrics routes priority
	// over this catch-all, so they are never shadowed by it.
	passthrough := []gin.HandlerFunc{
		middleware.RequestLogger(),
		middleware.Auth(s.verifier),
		middleware.RateLimit(s.limiter, 0, 0),
		func(c *gin.Context) { s.pipeline.ServeHTTP(c) },
	}
	engine.Any("/*proxyPath", passthrough...)

	return engine
}

func (s *Server) metricsPath() string {
	if s.cfg.MetricsPath == "" {
		return "/metrics"
	}
	return s.cfg.MetricsPath
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// Start binds every configured listener synchronously, so a port already in
// use is reported back to the caller instead of only logged from inside a
// goroutine (§6's unrecoverable-startup-error contract requires main to be
// able to exit non-zero on a bind failure). Serving each bound listener then
// moves to the background; Shutdown blocks until they drain.
func (s *Server) Start(ctx context.Context) error {
	engine := s.buildDataEngine()
	s.httpsSrv = &http.Server{
		Addr:      s.cfg.Server.ListenAddr,
		Handler:   engine,
		TLSConfig: s.tlsSlot.Config(),
	}
	rawLn, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind data-plane listener %s: %w", s.cfg.Server.ListenAddr, err)
	}
	tlsLn := tls.NewListener(rawLn, s.httpsSrv.TLSConfig)

	var acmeLn net.Listener
	if s.acmeMgr != nil {
		s.acmeSrv = &http.Server{
			Addr:    s.cfg.Server.ACMEListenAddr,
			Handler: s.acmeMgr.ChallengeHandler(),
		}
		acmeLn, err = net.Listen("tcp", s.cfg.Server.ACMEListenAddr)
		if err != nil {
			tlsLn.Close()
			return fmt.Errorf("bind acme challenge listener %s: %w", s.cfg.Server.ACMEListenAddr, err)
		}
	}

	var metricsLn net.Listener
	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(s.metricsPath(), promhttp.Handler())
		s.metricsSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
		metricsLn, err = net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			tlsLn.Close()
			if acmeLn != nil {
				acmeLn.Close()
			}
			return fmt.Errorf("bind metrics listener %s: %w", s.cfg.MetricsAddr, err)
		}
	}

	middleware.SafeGoWithContext("data-plane-listener", func() {
		log.WithField("addr", s.cfg.Server.ListenAddr).Info("data-plane listener starting")
		if err := s.httpsSrv.Serve(tlsLn); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("data-plane listener stopped")
		}
	})

	if s.acmeMgr != nil {
		middleware.SafeGoWithContext("acme-challenge-listener", func() {
			log.WithField("addr", s.cfg.Server.ACMEListenAddr).Info("acme challenge listener starting")
			if err := s.acmeSrv.Serve(acmeLn); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("acme challenge listener stopped")
			}
		})
		s.acmeMgr.StartRenewalSweep(ctx)
	}

	if s.cfg.MetricsAddr != "" {
		middleware.SafeGoWithContext("metrics-listener", func() {
			log.WithField("addr", s.cfg.MetricsAddr).Info("metrics listener starting")
			if err := s.metricsSrv.Serve(metricsLn); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics listener stopped")
			}
		})
	}

	return nil
}

// Shutdown gracefully drains every started listener (data-plane, ACME,
// metrics) within the configured timeout and stops the ACME manager.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if s.httpsSrv != nil {
		if err := s.httpsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("data-plane shutdown: %w", err))
		}
	}
	if s.acmeSrv != nil {
		if err := s.acmeSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("acme listener shutdown: %w", err))
		}
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics listener shutdown: %w", err))
		}
	}
	if s.acmeMgr != nil {
		s.acmeMgr.Stop()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

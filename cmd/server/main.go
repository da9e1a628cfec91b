package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gemini-relay/internal/acme"
	"gemini-relay/internal/audit"
	"gemini-relay/internal/auth"
	"gemini-relay/internal/config"
	"gemini-relay/internal/credential"
	"gemini-relay/internal/events"
	"gemini-relay/internal/logging"
	tracing "gemini-relay/internal/monitoring/tracing"
	"gemini-relay/internal/pipeline"
	"gemini-relay/internal/ratelimit"
	"gemini-relay/internal/scheduler"
	srv "gemini-relay/internal/server"
	"gemini-relay/internal/tlsfront"
	"gemini-relay/internal/upstream"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cm, err := config.NewManager(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	cfg := cm.GetConfig()
	if *debug {
		cfg.Debug = true
	}
	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	hub := events.NewHub()
	cm.SetEventPublisher(hub)
	cm.Watch()
	defer cm.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traceShutdown, err := tracing.Init(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to shutdown tracing")
			}
		}()
	}

	log.WithField("config", *configPath).Info("starting gemini-relay")

	creds := make([]*credential.Credential, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		creds = append(creds, credential.New(c.ID, c.Key, c.Weight, c.MaxRequestsPerMinute))
	}
	if len(creds) == 0 {
		log.Warn("no credentials configured; every request will be rejected with no_credential_available")
	}

	sched := scheduler.New(creds)
	sched.SetEventPublisher(hub)
	sched.StartHealthSweep(ctx)
	defer sched.Stop()

	verifier := auth.NewVerifier(cfg.Auth.JWTSigningSecret, cfg.Auth.RateLimitClaim)
	limiter := ratelimit.New(cfg.Auth.DefaultClientRateLimit)

	// Hot reload (§6): a new snapshot's credential list and signing secret
	// are applied in place to the already-running scheduler and verifier
	// without interrupting in-flight requests or restarting listeners.
	// Listener addresses and TLS mode are fixed at process start; changing
	// those still requires a restart.
	hub.Subscribe(events.TopicConfigUpdated, func(_ context.Context, evt events.Event) {
		newCfg, ok := evt.Payload.(*config.Snapshot)
		if !ok {
			return
		}
		specs := make([]credential.Spec, 0, len(newCfg.Credentials))
		for _, c := range newCfg.Credentials {
			specs = append(specs, credential.Spec{ID: c.ID, Key: c.Key, Weight: c.Weight, MaxRequestsPerMinute: c.MaxRequestsPerMinute})
		}
		sched.ApplyCredentials(specs)
		verifier.SetSecret(newCfg.Auth.JWTSigningSecret)
		log.Info("applied hot-reloaded credential pool and signing secret")
	})

	dispatcher := upstream.New(cfg.Upstream)
	defer dispatcher.Close()

	auditSink, err := audit.New(cfg.Audit)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize audit sink")
	}
	defer func() { _ = auditSink.Close() }()

	tlsSlot := tlsfront.NewSlot()
	var acmeMgr *acme.Manager

	switch cfg.TLS.Mode {
	case "acme":
		acmeMgr, err = acme.New(cfg.TLS, tlsSlot)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize ACME manager")
		}
		if err := acmeMgr.EnsureCertificate(ctx); err != nil {
			log.WithError(err).Fatal("failed to obtain initial ACME certificate")
		}
	default:
		if err := tlsfront.LoadStatic(tlsSlot, cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			log.WithError(err).Fatal("failed to load static TLS certificate")
		}
	}

	handler := &pipeline.Handler{
		Scheduler:  sched,
		Dispatcher: dispatcher,
		Audit:      auditSink,
	}

	server := srv.New(cfg, handler, verifier, limiter, tlsSlot, acmeMgr)
	if err := server.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	if err := server.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
	log.Info("server stopped")
}

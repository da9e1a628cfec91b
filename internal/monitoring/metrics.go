package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP-facing request metrics, exposed on /metrics (§6, outside Auth/RateLimit).
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_http_requests_total",
			Help: "Total number of HTTP requests handled by the data-plane listener",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gemini_relay_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, from Accepted to Logged",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gemini_relay_http_inflight",
			Help: "Number of HTTP requests currently in the pipeline",
		},
	)

	// Component A/B: credential scheduler and health state.
	CredentialSelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_credential_selections_total",
			Help: "Total number of times the scheduler selected a credential",
		},
		[]string{"credential"},
	)

	CredentialOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_credential_outcomes_total",
			Help: "Total number of reported outcomes per credential",
		},
		[]string{"credential", "outcome"}, // outcome: success|client_error|server_error|transport
	)

	CredentialDisabledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_credential_disabled_total",
			Help: "Total number of times a credential crossed the failure threshold and was disabled",
		},
		[]string{"credential"},
	)

	CredentialRecoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_credential_recovered_total",
			Help: "Total number of times a disabled credential was re-activated by the health sweep",
		},
		[]string{"credential"},
	)

	ActiveCredentials = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gemini_relay_active_credentials",
			Help: "Number of credentials currently eligible for selection",
		},
	)

	DisabledCredentials = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gemini_relay_disabled_credentials",
			Help: "Number of credentials currently disabled pending recovery",
		},
	)

	NoCredentialAvailableTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gemini_relay_no_credential_available_total",
			Help: "Total number of requests rejected because no credential was available",
		},
	)

	// Component D/E: client rate limiting and auth.
	ClientRateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_client_rate_limited_total",
			Help: "Total number of requests rejected by the per-client rate limiter",
		},
		[]string{"principal"},
	)

	RateLimitKeysGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gemini_relay_ratelimit_keys",
			Help: "Current number of tracked per-principal rate limit windows",
		},
	)

	AuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gemini_relay_auth_failures_total",
			Help: "Total number of bearer token verification failures",
		},
	)

	// Component G: upstream dispatch.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_upstream_requests_total",
			Help: "Total number of requests dispatched to the upstream Gemini API",
		},
		[]string{"status_class"},
	)

	UpstreamRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gemini_relay_upstream_request_duration_seconds",
			Help:    "Upstream request latency in seconds, from dial to final byte",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_upstream_errors_total",
			Help: "Total number of upstream dispatch failures by error kind",
		},
		[]string{"kind"},
	)

	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_tokens_used_total",
			Help: "Total number of tokens reported in upstream usage metadata",
		},
		[]string{"model", "type"}, // type: prompt|candidates|total
	)

	// Component H/I: TLS termination and ACME.
	TLSHandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_tls_handshakes_total",
			Help: "Total number of TLS handshakes by outcome",
		},
		[]string{"outcome"}, // outcome: ok|error
	)

	ACMEOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_acme_orders_total",
			Help: "Total number of ACME certificate orders by outcome",
		},
		[]string{"outcome"}, // outcome: issued|failed
	)

	ACMERenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_acme_renewals_total",
			Help: "Total number of ACME certificate renewal attempts by outcome",
		},
		[]string{"outcome"},
	)

	ACMECertificateExpirySeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gemini_relay_acme_certificate_expiry_seconds",
			Help: "Seconds remaining until the installed certificate expires",
		},
	)

	// Component J: audit sink.
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_relay_audit_events_total",
			Help: "Total number of events appended to the audit sink",
		},
		[]string{"kind", "status"}, // status: ok|error|skipped (skipped: no sink attached)
	)
)

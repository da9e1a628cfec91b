// Package upstream dispatches rewritten requests to the Gemini API
// (component G): a pooled HTTPS client, header rewriting, and
// bidirectional streaming without whole-body buffering.
package upstream

import (
	"net"
	"net/http"
	"time"

	"gemini-relay/internal/config"
	"gemini-relay/internal/constants"
)

// Target is the fixed upstream host this proxy fronts (§6).
type Target struct {
	Host string
	Port int
}

// idleConnTimeout matches §4.6's "idle connections expire after 60s"
// exactly; the teacher's own transport tuning in
// internal/upstream/gemini/client.go uses a longer 90s default tuned for a
// different upstream, so this is deliberately narrower.
const idleConnTimeout = 60 * time.Second

// Dispatcher holds the pooled HTTP client used to reach the upstream host.
// Connections are reused across requests and keyed by (host, port, ALPN) the
// way net/http.Transport already does internally; no retry logic lives
// here by design (§4.6: retry policy is the caller's concern).
type Dispatcher struct {
	Target Target
	client *http.Client
}

// New builds a Dispatcher targeting the configured upstream, with a
// transport tuned the way the teacher's gemini.Client tunes its own
// connection pool (internal/upstream/gemini/client.go), adapted to this
// proxy's single fixed idle timeout.
func New(cfg config.UpstreamConfig) *Dispatcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.DefaultDialTimeout,
			KeepAlive: constants.DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   constants.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.HighThroughputResponseHeaderTimeout,
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		MaxIdleConns:          constants.BaseMaxIdleConns,
		MaxIdleConnsPerHost:   constants.HighThroughputMaxIdleConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &Dispatcher{
		Target: Target{Host: cfg.Host, Port: cfg.Port},
		client: &http.Client{Transport: transport, Timeout: 0},
	}
}

// Rewrite applies §4.4's Scheduled→Dispatching transition in place: sets
// Host to the upstream host, injects the chosen credential as
// x-goog-api-key, and strips the inbound Authorization header so the
// caller's bearer token never reaches Google. Method, path, query, and
// body are left untouched.
func (d *Dispatcher) Rewrite(req *http.Request, credentialKey string) {
	req.Host = d.Target.Host
	req.URL.Scheme = "https"
	req.URL.Host = d.Target.Host
	req.Header.Set("x-goog-api-key", credentialKey)
	req.Header.Del("Authorization")
}

// Do sends the rewritten request upstream and returns the response with
// its body still open for streaming. The caller is responsible for closing
// resp.Body. Any error here — connect, TLS, timeout — happened before a
// response byte was read and must be mapped with
// errors.MapTransportError, never retried.
func (d *Dispatcher) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req)
}

// Close releases idle pooled connections, used on shutdown.
func (d *Dispatcher) Close() {
	d.client.CloseIdleConnections()
}

// Package pipeline drives a request through the Scheduled->Dispatching->
// Responding->Reported->Logged tail of the per-request state machine
// (§4.4). Accepted->Authenticated->RateChecked happen in
// internal/middleware (Auth, RateLimit) before the gin handler here ever
// runs; this package picks up once a request is ready for credential
// selection.
package pipeline

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"gemini-relay/internal/audit"
	"gemini-relay/internal/constants"
	apperrors "gemini-relay/internal/errors"
	"gemini-relay/internal/monitoring"
	"gemini-relay/internal/monitoring/tracing"
	"gemini-relay/internal/scheduler"
	"gemini-relay/internal/upstream"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Handler wires the scheduler, upstream dispatcher, and audit sink into a
// single gin.HandlerFunc covering the data path's tail.
type Handler struct {
	Scheduler  *scheduler.Scheduler
	Dispatcher *upstream.Dispatcher
	Audit      *audit.Sink
}

// ServeHTTP implements the Scheduled..Logged transitions for one request.
func (h *Handler) ServeHTTP(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	model := modelFromPath(c.Request.URL.Path)

	monitoring.HTTPInFlight.Inc()
	defer monitoring.HTTPInFlight.Dec()

	ctx, span := tracing.StartSpan(ctx, "pipeline", "pipeline.select")
	cred, err := h.Scheduler.Select(ctx)
	if err != nil {
		span.End()
		h.rejectNoCredential(c, start)
		return
	}
	span.SetAttributes(attribute.String("credential.id", cred.ID))
	span.End()

	// Non-streaming calls get a bounded overall deadline (§4.6's
	// configured/default timeout collapses connect, headers, and body into
	// one budget for these); streaming calls are deliberately left
	// uncapped beyond the client's own context, since body streaming has
	// no deadline per §4.6.
	dispatchCtx := ctx
	var cancelDispatch context.CancelFunc
	if !isStreamingPath(c.Request.URL.Path) {
		dispatchCtx, cancelDispatch = context.WithTimeout(ctx, constants.UpstreamGenerateTimeout)
		defer cancelDispatch()
	}

	ctx, dispatchSpan := tracing.StartSpan(dispatchCtx, "pipeline", "pipeline.dispatch")
	dispatchSpan.SetAttributes(attribute.String("credential.id", cred.ID))
	req := c.Request.Clone(ctx)
	h.Dispatcher.Rewrite(req, cred.KeyValue())

	resp, err := h.Dispatcher.Do(req)
	if err != nil {
		dispatchSpan.RecordError(err)
		dispatchSpan.SetStatus(codes.Error, err.Error())
		dispatchSpan.End()
		h.reportTransportFailure(c, cred.ID, err, start, model)
		return
	}
	dispatchSpan.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	dispatchSpan.End()
	defer resp.Body.Close()

	outcome := MapStatusOutcome(resp.StatusCode)
	h.report(cred.ID, outcome)

	c.Status(resp.StatusCode)
	for k, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Writer.WriteHeaderNow()

	var copyErr error
	if isEventStream(resp.Header.Get("Content-Type")) {
		copyErr = copyResponse(c.Writer, resp.Body, model)
	} else {
		_, copyErr = io.Copy(c.Writer, resp.Body)
	}
	if copyErr != nil && ctx.Err() != nil {
		log.WithField("credential_id", cred.ID).Debug("client disconnected mid-stream")
	}

	h.logAndAudit(c, cred.ID, outcome, resp.StatusCode, start, model)
}

func (h *Handler) rejectNoCredential(c *gin.Context, start time.Time) {
	retryAfter := secondsUntilNextMinuteBoundary(time.Now())
	err := apperrors.NewForKind(apperrors.KindNoCredential, "no credential available").WithRetryAfter(retryAfter)
	monitoring.NoCredentialAvailableTotal.Inc()
	writeAPIError(c, err)
	h.logAndAudit(c, "", OutcomeServerError, err.HTTPStatus, start, "unknown")
}

// reportTransportFailure handles §4.4's Dispatching->Failed path: a
// connect/TLS/timeout error observed before any response byte. It counts
// against the credential's failure threshold, unlike a client-side
// cancellation.
func (h *Handler) reportTransportFailure(c *gin.Context, credentialID string, err error, start time.Time, model string) {
	mapped := apperrors.MapTransportError(err)
	if c.Request.Context().Err() != nil {
		// Client disconnected before upstream responded: a ClientError, not
		// a credential failure (§4.4 Cancellation).
		writeAPIError(c, mapped)
		h.logAndAudit(c, credentialID, OutcomeClientError, mapped.HTTPStatus, start, model)
		return
	}
	h.Scheduler.Report(credentialID, false)
	monitoring.UpstreamErrorsTotal.WithLabelValues(string(mapped.Kind)).Inc()
	writeAPIError(c, mapped)
	h.logAndAudit(c, credentialID, OutcomeTransport, mapped.HTTPStatus, start, model)
}

// report applies §4.4's outcome->scheduler mapping: Success resets the
// failure counter, ServerError (429/5xx) increments it, ClientError (4xx
// non-429) is neither — it is the client's fault, not the credential's.
func (h *Handler) report(credentialID string, outcome Outcome) {
	switch outcome {
	case OutcomeSuccess:
		h.Scheduler.Report(credentialID, true)
	case OutcomeServerError:
		h.Scheduler.Report(credentialID, false)
	}
}

func (h *Handler) logAndAudit(c *gin.Context, credentialID string, outcome Outcome, status int, start time.Time, model string) {
	elapsed := time.Since(start)
	statusClass := statusClassOf(status)

	monitoring.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), statusClass).Inc()
	monitoring.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath(), statusClass).Observe(elapsed.Seconds())
	if credentialID != "" {
		monitoring.UpstreamRequestsTotal.WithLabelValues(statusClass).Inc()
		monitoring.UpstreamRequestDuration.Observe(elapsed.Seconds())
		monitoring.CredentialOutcomesTotal.WithLabelValues(credentialID, string(outcome)).Inc()
	}

	log.WithFields(log.Fields{
		"credential_id": credentialID,
		"outcome":       outcome,
		"status":        status,
		"duration_ms":   elapsed.Milliseconds(),
		"model":         model,
	}).Info("request completed")

	if h.Audit != nil {
		if err := h.Audit.Append(c.Request.Context(), "request_outcome", map[string]string{
			"credential_id": credentialID,
			"outcome":       string(outcome),
			"model":         model,
		}); err != nil {
			log.WithError(err).WithField("credential_id", credentialID).Warn("failed to append audit record")
		}
	}
}

func writeAPIError(c *gin.Context, err *apperrors.APIError) {
	payload, marshalErr := err.ToJSON()
	if err.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(err.RetryAfter))
	}
	if marshalErr != nil {
		c.AbortWithStatus(err.HTTPStatus)
		return
	}
	c.Data(err.HTTPStatus, "application/json", payload)
	c.Abort()
}

func secondsUntilNextMinuteBoundary(now time.Time) int {
	next := now.Truncate(time.Minute).Add(time.Minute)
	d := next.Sub(now)
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func statusClassOf(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

package errors

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSONUsesKindTagAsCode(t *testing.T) {
	err := NewForKind(KindAuthFailure, "invalid bearer token")
	payload, marshalErr := err.ToJSON()
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `{"error":{"code":"AuthFailure","message":"invalid bearer token"}}`, string(payload))
}

func TestHTTPStatusForMapping(t *testing.T) {
	cases := map[Kind]int{
		KindAuthFailure:     http.StatusUnauthorized,
		KindClientRateLimit: http.StatusTooManyRequests,
		KindNoCredential:    http.StatusServiceUnavailable,
		KindUpstreamTransp:  http.StatusBadGateway,
		KindUpstreamTimeout: http.StatusGatewayTimeout,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatusFor(kind), string(kind))
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, NewForKind(KindClientRateLimit, "x").IsRetryable())
	assert.True(t, NewForKind(KindUpstreamTimeout, "x").IsRetryable())
	assert.False(t, NewForKind(KindAuthFailure, "x").IsRetryable())
}

func TestMapTransportErrorClassifiesDeadlineAsTimeout(t *testing.T) {
	mapped := MapTransportError(context.DeadlineExceeded)
	assert.Equal(t, KindUpstreamTimeout, mapped.Kind)
}

func TestMapTransportErrorDefaultsToTransport(t *testing.T) {
	mapped := MapTransportError(errors.New("connection refused"))
	assert.Equal(t, KindUpstreamTransp, mapped.Kind)
}

func TestWithRetryAfterAndCorrelationID(t *testing.T) {
	err := New(500, KindInternal, "boom").WithCorrelationID("abc-123").WithRetryAfter(5)
	assert.Equal(t, "abc-123", err.CorrelationID)
	assert.Equal(t, 5, err.RetryAfter)
}

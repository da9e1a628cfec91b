package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// MapTransportError classifies a pre-response transport failure from the
// upstream dispatcher (component G) into UpstreamTimeout or
// UpstreamTransport, per §4.6: any failure observed before a response status
// line arrives is a transport failure, never retried.
func MapTransportError(err error) *APIError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewForKind(KindUpstreamTimeout, "upstream request timed out: "+err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewForKind(KindUpstreamTimeout, "upstream request timed out: "+err.Error())
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return NewForKind(KindUpstreamTimeout, "upstream request timed out: "+err.Error())
	default:
		return NewForKind(KindUpstreamTransp, "upstream transport error: "+err.Error())
	}
}

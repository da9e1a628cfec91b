package audit

import (
	"context"
	"testing"

	"gemini-relay/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	mr := miniredis.RunT(t)
	sink, err := New(config.AuditConfig{RedisAddr: mr.Addr(), StreamKey: "test:audit"})
	require.NoError(t, err)
	require.NotNil(t, sink)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestNewWithNoRedisAddrIsNilSink(t *testing.T) {
	sink, err := New(config.AuditConfig{})
	require.NoError(t, err)
	require.Nil(t, sink)
}

func TestNilSinkAppendIsNoop(t *testing.T) {
	var sink *Sink
	err := sink.Append(context.Background(), "request_outcome", map[string]string{"x": "y"})
	require.NoError(t, err)
}

func TestAppendWritesToStream(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	err := sink.Append(ctx, "request_outcome", map[string]string{
		"credential_id": "cred-1",
		"outcome":       "success",
	})
	require.NoError(t, err)

	count, err := sink.client.XLen(ctx, "test:audit").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestPingOnNilSink(t *testing.T) {
	var sink *Sink
	require.NoError(t, sink.Ping(context.Background()))
}

// Package audit appends outcome and credential-change records to an
// external sink (the sink half of component J): "the core does not
// persist state itself... it emits change events... to an external sink
// if one is attached" (§6). Trimmed from the teacher's full CRUD Redis
// backend down to a single append-only stream, since general persistence
// stays out of scope per §1.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gemini-relay/internal/config"
	"gemini-relay/internal/monitoring"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Record is one entry in the audit stream: a request outcome or a
// credential/config change event.
type Record struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // e.g. "request_outcome", "credential_disabled"
	Timestamp time.Time `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
}

// Sink appends Records to a Redis stream. A nil *Sink is valid and a no-op,
// matching §6's "if one is attached" — the sink is optional.
type Sink struct {
	client    *redis.Client
	streamKey string
}

// New constructs a Sink from AuditConfig. It returns (nil, nil) when no
// Redis address is configured, so callers can treat an absent sink the
// same as a present-but-unused one.
func New(cfg config.AuditConfig) (*Sink, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	streamKey := cfg.StreamKey
	if streamKey == "" {
		streamKey = "gemini-relay:audit"
	}

	return &Sink{client: client, streamKey: streamKey}, nil
}

// Ping verifies connectivity at startup.
func (s *Sink) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Append writes one record to the stream. It never blocks the request
// path waiting on Redis beyond its configured write timeout, and a
// failure here is logged by the caller, not propagated to the client —
// the audit sink is observational, not part of the request's success
// criteria.
func (s *Sink) Append(ctx context.Context, kind string, fields map[string]string) error {
	if s == nil {
		monitoring.AuditEventsTotal.WithLabelValues(kind, "skipped").Inc()
		return nil
	}

	rec := Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		monitoring.AuditEventsTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey,
		Values: map[string]interface{}{"record": payload},
	}).Err()
	if err != nil {
		monitoring.AuditEventsTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("audit: append to stream: %w", err)
	}
	monitoring.AuditEventsTotal.WithLabelValues(kind, "ok").Inc()
	return nil
}

// Close releases the underlying Redis client.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}

// Package ratelimit implements the per-client fixed-window rate limiter
// (component D): one entry per authenticated principal, reset once a full
// minute has elapsed since the window opened. The sliding-vs-fixed Open
// Question is resolved in favor of fixed, per DESIGN.md.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	mu      sync.Mutex
	count   int
	start   time.Time
	limit   int
	lastHit time.Time
}

func (w *window) allow(now time.Time, limit int) (bool, int, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastHit = now
	w.limit = limit
	if w.start.IsZero() || now.Sub(w.start) >= time.Minute {
		w.start = now
		w.count = 0
	}
	resetAt := w.start.Add(time.Minute)
	if w.count >= limit {
		return false, 0, resetAt
	}
	w.count++
	return true, limit - w.count, resetAt
}

// Limiter tracks one fixed one-minute window per principal.
type Limiter struct {
	mu           sync.Mutex
	windows      map[string]*window
	defaultLimit int
	ttl          time.Duration
	lastSweep    time.Time
}

// New constructs a Limiter with the given default per-minute limit. An
// individual principal's limit can be overridden per-call (e.g. from a JWT
// rate-limit claim) by passing a different limit to Allow.
func New(defaultLimit int) *Limiter {
	return &Limiter{
		windows:      make(map[string]*window),
		defaultLimit: defaultLimit,
		ttl:          15 * time.Minute,
	}
}

// Allow consumes one unit from principal's window, using limit if positive
// or the configured default otherwise. It returns whether the request is
// admitted, the remaining quota in the current window, and when the window
// resets.
func (l *Limiter) Allow(principal string, limit int) (bool, int, time.Time) {
	if limit <= 0 {
		limit = l.defaultLimit
	}
	now := time.Now()

	l.mu.Lock()
	w, ok := l.windows[principal]
	if !ok {
		w = &window{}
		l.windows[principal] = w
	}
	if now.Sub(l.lastSweep) > 2*time.Minute {
		l.sweepLocked(now)
	}
	l.mu.Unlock()

	return w.allow(now, limit)
}

func (l *Limiter) sweepLocked(now time.Time) {
	for k, w := range l.windows {
		w.mu.Lock()
		stale := now.Sub(w.lastHit) > l.ttl
		w.mu.Unlock()
		if stale {
			delete(l.windows, k)
		}
	}
	l.lastSweep = now
}

// DefaultLimit reports the limiter's configured default per-minute limit,
// used to populate the X-RateLimit-Limit header when a request has no
// per-principal override.
func (l *Limiter) DefaultLimit() int {
	return l.defaultLimit
}

// Size reports the number of tracked principals, for the rate-limit-keys
// gauge.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Package credential holds the upstream API-key credential record
// (component B) and its per-minute token bucket (component A): the unit the
// weighted scheduler selects between.
package credential

import (
	"sync"
	"time"
)

// FailureThreshold is the number of consecutive failures that disables a
// credential (§4.2). A credential is re-enabled by the scheduler's health
// sweep, not by a success from the disabled credential itself (it won't be
// selected once disabled).
const FailureThreshold = 5

// Credential is a single upstream API-key entry in the pool: its identity,
// its weight and rate limit, and the mutable counters the scheduler and
// token bucket update on every request.
type Credential struct {
	mu sync.Mutex

	ID                   string
	Key                  string
	Weight               int
	MaxRequestsPerMinute int

	isActive          bool
	failureCount      int
	currentMinuteUsage int
	minuteWindowStart time.Time
}

// Spec is the declarative form of a credential as it arrives from a
// configuration snapshot (§6): just the identity and policy fields, none
// of the mutable counters. Scheduler.ApplyCredentials diffs a new snapshot
// of Specs against the live pool by ID.
type Spec struct {
	ID                   string
	Key                  string
	Weight               int
	MaxRequestsPerMinute int
}

// New constructs a Credential in its initial, active state.
func New(id, key string, weight, maxRequestsPerMinute int) *Credential {
	return &Credential{
		ID:                   id,
		Key:                  key,
		Weight:               weight,
		MaxRequestsPerMinute: maxRequestsPerMinute,
		isActive:             true,
	}
}

// Snapshot is an immutable, lock-free copy of a credential's current state,
// used for the scheduler's Snapshot() read surface — never for mutation.
type Snapshot struct {
	ID                 string
	Weight             int
	MaxRequestsPerMin  int
	IsActive           bool
	FailureCount       int
	CurrentMinuteUsage int
}

// State returns a point-in-time snapshot of the credential.
func (c *Credential) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollWindowLocked(time.Now())
	return Snapshot{
		ID:                 c.ID,
		Weight:             c.Weight,
		MaxRequestsPerMin:  c.MaxRequestsPerMinute,
		IsActive:           c.isActive,
		FailureCount:       c.failureCount,
		CurrentMinuteUsage: c.currentMinuteUsage,
	}
}

// IsActive reports whether the credential is currently eligible for
// selection (not disabled by failure-count threshold or administratively).
func (c *Credential) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isActive
}

// rollWindowLocked resets the minute counter when the current fixed window
// has elapsed. Per §4.1, the window rolls as a whole — there is no partial
// mid-window refill proportional to elapsed time.
func (c *Credential) rollWindowLocked(now time.Time) {
	if c.minuteWindowStart.IsZero() || now.Sub(c.minuteWindowStart) >= time.Minute {
		c.minuteWindowStart = now
		c.currentMinuteUsage = 0
	}
}

// Admit attempts to consume one unit of the credential's per-minute token
// bucket. It returns false, without side effects, if the current window is
// already exhausted.
func (c *Credential) Admit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollWindowLocked(now)
	if c.currentMinuteUsage >= c.MaxRequestsPerMinute {
		return false
	}
	c.currentMinuteUsage++
	return true
}

// MarkSuccess resets the failure counter, the mechanism by which a
// credential recovers its eligibility after isolated failures without
// waiting for the scheduler's health sweep.
func (c *Credential) MarkSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount = 0
}

// MarkFailure increments the failure counter and disables the credential
// once it reaches FailureThreshold (§4.2). Only upstream transport failures
// and 5xx/429 responses should reach this call — client cancellation is
// explicitly excluded (it is a ClientError, not a credential failure).
func (c *Credential) MarkFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= FailureThreshold {
		c.isActive = false
	}
}

// Recover lowers the failure count by the sweep's probe value and
// re-activates the credential once it drops back under the threshold. Used
// exclusively by the scheduler's periodic health sweep (component J).
func (c *Credential) Recover(probe int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount -= probe
	if c.failureCount < 0 {
		c.failureCount = 0
	}
	if c.failureCount < FailureThreshold {
		c.isActive = true
	}
}

// SetActive administratively enables or disables the credential,
// independent of failure tracking; enabling also clears the failure count.
func (c *Credential) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isActive = active
	if active {
		c.failureCount = 0
	}
}

// SetWeight updates the scheduler weight in place (component C's
// UpdateWeight operation).
func (c *Credential) SetWeight(weight int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Weight = weight
}

// KeyValue returns the credential's current secret, synchronized against
// concurrent RotateKey calls (e.g. from a config hot-reload).
func (c *Credential) KeyValue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Key
}

// RotateKey replaces the credential's secret value without changing its
// identity, weight, or counters.
func (c *Credential) RotateKey(newKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Key = newKey
}

// Package scheduler implements the weighted round-robin selection over the
// credential pool (component C) plus its periodic health sweep (the
// scheduler half of component J).
package scheduler

import (
	"context"
	"sync"
	"time"

	"gemini-relay/internal/credential"
	apperrors "gemini-relay/internal/errors"
	"gemini-relay/internal/events"
	"gemini-relay/internal/middleware"
	"gemini-relay/internal/monitoring"
	log "github.com/sirupsen/logrus"
)

// HealthSweepInterval is how often the scheduler re-examines disabled
// credentials for recovery (§4.2).
const HealthSweepInterval = 30 * time.Second

// HealthProbeValue is how much a sweep reduces a disabled credential's
// failure count, letting it recover gradually rather than snapping straight
// back to full eligibility.
const HealthProbeValue = 4

type entry struct {
	cred          *credential.Credential
	currentWeight int
}

// Scheduler holds the live credential pool and performs deficit-counter
// weighted round-robin selection across it. A single mutex guards the
// whole set (§5's short-critical-section option): selection runs once per
// request, but its critical section is a single pass over a small pool, and
// a per-credential lock would only add contention on the shared cursor state.
type Scheduler struct {
	mu        sync.Mutex
	entries   []*entry
	byID      map[string]*entry
	publisher events.Publisher

	stopCh chan struct{}
}

// New constructs a Scheduler seeded with the given credentials.
func New(creds []*credential.Credential) *Scheduler {
	s := &Scheduler{
		byID:   make(map[string]*entry),
		stopCh: make(chan struct{}),
	}
	for _, c := range creds {
		s.addLocked(c)
	}
	s.updateHealthGaugesLocked()
	return s
}

// SetEventPublisher attaches the hub credential add/disable/weight events
// are published to.
func (s *Scheduler) SetEventPublisher(p events.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

func (s *Scheduler) addLocked(c *credential.Credential) {
	e := &entry{cred: c}
	s.entries = append(s.entries, e)
	s.byID[c.ID] = e
}

// updateHealthGaugesLocked recomputes the active/disabled credential gauges.
// Callers must hold s.mu.
func (s *Scheduler) updateHealthGaugesLocked() {
	active := 0
	for _, e := range s.entries {
		if e.cred.IsActive() {
			active++
		}
	}
	monitoring.ActiveCredentials.Set(float64(active))
	monitoring.DisabledCredentials.Set(float64(len(s.entries) - active))
}

// Add registers a new credential with the scheduler.
func (s *Scheduler) Add(c *credential.Credential) {
	s.mu.Lock()
	s.addLocked(c)
	s.updateHealthGaugesLocked()
	s.mu.Unlock()
	s.publish(events.TopicCredentialAdded, c.ID)
}

// Remove drops a credential from the pool entirely.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, e := range s.entries {
		if e.cred.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.updateHealthGaugesLocked()
}

// UpdateWeight changes a credential's scheduling weight in place. SetWeight
// is called while s.mu is still held, matching ApplyCredentials: Select
// reads e.cred.Weight under s.mu alone (not cred's own mutex), so a weight
// update that released s.mu first would race against a concurrent Select.
func (s *Scheduler) UpdateWeight(id string, weight int) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	if ok {
		e.cred.SetWeight(weight)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.publish(events.TopicCredentialWeight, id)
	return true
}

// RotateKey replaces a credential's secret in place.
func (s *Scheduler) RotateKey(id, newKey string) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.cred.RotateKey(newKey)
	return true
}

// ApplyCredentials hot-reloads the credential pool from a new configuration
// snapshot (§6): credentials present in both the live pool and specs have
// their weight and key updated in place, leaving id, usage, and health
// state untouched (§8 testable property 7); credentials only in specs are
// added; credentials only in the live pool are removed.
func (s *Scheduler) ApplyCredentials(specs []credential.Spec) {
	seen := make(map[string]bool, len(specs))
	var toAdd []*credential.Credential

	s.mu.Lock()
	for _, spec := range specs {
		seen[spec.ID] = true
		if e, ok := s.byID[spec.ID]; ok {
			e.cred.SetWeight(spec.Weight)
			if e.cred.KeyValue() != spec.Key {
				e.cred.RotateKey(spec.Key)
			}
			continue
		}
		toAdd = append(toAdd, credential.New(spec.ID, spec.Key, spec.Weight, spec.MaxRequestsPerMinute))
	}

	var toRemove []string
	for id := range s.byID {
		if !seen[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(s.byID, id)
		for i, e := range s.entries {
			if e.cred.ID == id {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				break
			}
		}
	}
	for _, c := range toAdd {
		s.addLocked(c)
	}
	s.updateHealthGaugesLocked()
	s.mu.Unlock()

	for _, id := range toRemove {
		log.WithField("credential_id", id).Info("credential removed by config reload")
	}
	for _, c := range toAdd {
		log.WithField("credential_id", c.ID).Info("credential added by config reload")
		s.publish(events.TopicCredentialAdded, c.ID)
	}
}

// Select picks the next credential to dispatch a request to: a smooth
// weighted round-robin pass over currently active entries, skipping any
// whose per-minute token bucket is already exhausted, per §4.1/§4.2. It
// returns NoCredentialAvailable if every active credential's bucket is
// exhausted or the pool is empty/fully disabled.
func (s *Scheduler) Select(ctx context.Context) (*credential.Credential, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	exhausted := make(map[string]bool)
	for {
		var candidates []*entry
		for _, e := range s.entries {
			if e.cred.IsActive() && e.cred.Weight > 0 && !exhausted[e.cred.ID] {
				candidates = append(candidates, e)
			}
		}
		if len(candidates) == 0 {
			return nil, apperrors.NewForKind(apperrors.KindNoCredential, "no credential available")
		}

		totalWeight := 0
		var best *entry
		for _, e := range candidates {
			w := e.cred.Weight
			e.currentWeight += w
			totalWeight += w
			if best == nil || e.currentWeight > best.currentWeight {
				best = e
			}
		}
		best.currentWeight -= totalWeight

		if best.cred.Admit(now) {
			monitoring.CredentialSelectionsTotal.WithLabelValues(best.cred.ID).Inc()
			return best.cred, nil
		}
		exhausted[best.cred.ID] = true
	}
}

// Report records a request outcome against the credential that served it,
// driving the failure-threshold disable logic in §4.2. Client-side
// cancellation must never be reported here — it maps to ClientError, not a
// credential failure.
func (s *Scheduler) Report(id string, success bool) {
	s.mu.Lock()
	e, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	if success {
		e.cred.MarkSuccess()
		return
	}
	e.cred.MarkFailure()
	if !e.cred.IsActive() {
		log.WithField("credential_id", id).Warn("credential disabled after consecutive failures")
		monitoring.CredentialDisabledTotal.WithLabelValues(id).Inc()
		s.mu.Lock()
		s.updateHealthGaugesLocked()
		s.mu.Unlock()
		s.publish(events.TopicCredentialDisabled, id)
	}
}

// Snapshot returns a point-in-time view of every credential in the pool,
// the read surface a "smart rebalance" optimizer (left unimplemented, see
// DESIGN.md) would consume.
func (s *Scheduler) Snapshot() []credential.Snapshot {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	out := make([]credential.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.cred.State())
	}
	return out
}

// StartHealthSweep launches the periodic recovery sweep in the background.
// Call Stop to terminate it.
func (s *Scheduler) StartHealthSweep(ctx context.Context) {
	ticker := time.NewTicker(HealthSweepInterval)
	middleware.SafeGoWithContext("scheduler-health-sweep", func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	})
}

func (s *Scheduler) sweep() {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	recovered := false
	for _, e := range entries {
		if e.cred.IsActive() {
			continue
		}
		e.cred.Recover(HealthProbeValue)
		if e.cred.IsActive() {
			recovered = true
			log.WithField("credential_id", e.cred.ID).Info("credential recovered by health sweep")
			monitoring.CredentialRecoveredTotal.WithLabelValues(e.cred.ID).Inc()
			s.publish(events.TopicCredentialRecovered, e.cred.ID)
		}
	}
	if recovered {
		s.mu.Lock()
		s.updateHealthGaugesLocked()
		s.mu.Unlock()
	}
}

// Stop terminates the health sweep goroutine.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) publish(topic, credentialID string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(context.Background(), topic, credentialID, nil)
}

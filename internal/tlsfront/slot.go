// Package tlsfront terminates inbound TLS for the data-plane listener
// (component H): an atomically swappable certificate slot plus a
// tls.Config.GetCertificate hook, so renewal (driven by internal/acme)
// never blocks or interrupts an in-flight handshake.
package tlsfront

import (
	"crypto/tls"
	"fmt"
	"sync/atomic"

	"gemini-relay/internal/monitoring"
)

// Slot holds the certificate currently served by the terminator. Go's
// garbage collector already keeps the old *tls.Certificate alive for as
// long as any in-flight handshake holds a reference to it, so the
// reference counting §5 describes falls directly out of atomic.Pointer
// plus normal GC — there is no separate refcount to manage by hand.
type Slot struct {
	ptr atomic.Pointer[tls.Certificate]
}

// NewSlot constructs an empty slot; Store must be called before the first
// handshake or GetCertificate returns an error.
func NewSlot() *Slot {
	return &Slot{}
}

// Store atomically publishes a new certificate. Readers that already
// cloned the previous pointer at handshake start are unaffected.
func (s *Slot) Store(cert *tls.Certificate) {
	s.ptr.Store(cert)
}

// Load returns the certificate currently installed, or nil if none has
// been stored yet.
func (s *Slot) Load() *tls.Certificate {
	return s.ptr.Load()
}

// GetCertificate implements the tls.Config hook: each handshake clones the
// slot's pointer exactly once at handshake start (§5), so a concurrent
// Store from the ACME renewal task only ever affects subsequent
// handshakes.
func (s *Slot) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := s.ptr.Load()
	if cert == nil {
		monitoring.TLSHandshakesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("tlsfront: no certificate installed")
	}
	monitoring.TLSHandshakesTotal.WithLabelValues("ok").Inc()
	return cert, nil
}

// Config builds a tls.Config wired to this slot, for both static and
// ACME-managed certificate modes.
func (s *Slot) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: s.GetCertificate,
		MinVersion:     tls.VersionTLS12,
		NextProtos:     []string{"h2", "http/1.1"},
	}
}

// LoadStatic reads a PEM certificate/key pair from disk and stores it in
// the slot, for TLSConfig.Mode == "static".
func LoadStatic(slot *Slot, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("tlsfront: load static cert/key: %w", err)
	}
	slot.Store(&cert)
	return nil
}

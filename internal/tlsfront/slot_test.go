package tlsfront

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCertificateErrorsWhenEmpty(t *testing.T) {
	s := NewSlot()
	_, err := s.GetCertificate(nil)
	assert.Error(t, err)
}

func TestStoreThenGetCertificateReturnsLatest(t *testing.T) {
	s := NewSlot()
	certA := newSelfSignedCert(t, "a.example.com")
	certB := newSelfSignedCert(t, "b.example.com")

	s.Store(certA)
	got, err := s.GetCertificate(nil)
	require.NoError(t, err)
	assert.Same(t, certA, got)

	s.Store(certB)
	got, err = s.GetCertificate(nil)
	require.NoError(t, err)
	assert.Same(t, certB, got)
}

func TestConfigWiresGetCertificateHook(t *testing.T) {
	s := NewSlot()
	s.Store(newSelfSignedCert(t, "example.com"))
	cfg := s.Config()
	require.NotNil(t, cfg.GetCertificate)
	cert, err := cfg.GetCertificate(nil)
	require.NoError(t, err)
	assert.NotNil(t, cert)
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowFixedWindow(t *testing.T) {
	l := New(2)

	ok, remaining, _ := l.Allow("alice", 0)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	ok, remaining, _ = l.Allow("alice", 0)
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _, resetAt := l.Allow("alice", 0)
	assert.False(t, ok)
	assert.True(t, resetAt.After(time.Now()))
}

func TestAllowPerPrincipalOverride(t *testing.T) {
	l := New(1)

	ok, _, _ := l.Allow("bob", 5)
	assert.True(t, ok)
	ok, _, _ = l.Allow("bob", 5)
	assert.True(t, ok, "per-principal override should raise the limit above the default")
}

func TestAllowIndependentPrincipals(t *testing.T) {
	l := New(1)

	ok, _, _ := l.Allow("alice", 0)
	assert.True(t, ok)
	ok, _, _ = l.Allow("bob", 0)
	assert.True(t, ok, "separate principals must not share a window")
}

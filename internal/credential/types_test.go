package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitFixedWindowNoPartialRefill(t *testing.T) {
	c := New("c1", "key", 1, 2)
	now := time.Now()

	require.True(t, c.Admit(now))
	require.True(t, c.Admit(now.Add(10*time.Millisecond)))
	assert.False(t, c.Admit(now.Add(20*time.Millisecond)), "third request within the same window must be rejected")

	// Halfway through the window, still no partial refill.
	assert.False(t, c.Admit(now.Add(30*time.Second)))

	// Once the whole window elapses, the bucket refills in full.
	assert.True(t, c.Admit(now.Add(time.Minute+time.Millisecond)))
}

func TestMarkFailureDisablesAtThreshold(t *testing.T) {
	c := New("c1", "key", 1, 100)
	require.True(t, c.IsActive())

	for i := 0; i < FailureThreshold-1; i++ {
		c.MarkFailure()
		assert.True(t, c.IsActive(), "should remain active below threshold")
	}
	c.MarkFailure()
	assert.False(t, c.IsActive(), "should disable at threshold")
}

func TestMarkSuccessResetsFailureCount(t *testing.T) {
	c := New("c1", "key", 1, 100)
	c.MarkFailure()
	c.MarkFailure()
	c.MarkSuccess()
	assert.Equal(t, 0, c.State().FailureCount)
}

func TestRecoverReactivatesBelowThreshold(t *testing.T) {
	c := New("c1", "key", 1, 100)
	for i := 0; i < FailureThreshold; i++ {
		c.MarkFailure()
	}
	require.False(t, c.IsActive())

	c.Recover(4)
	assert.True(t, c.IsActive())
}

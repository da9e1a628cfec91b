package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSecondsUntilNextMinuteBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	assert.Equal(t, 30, secondsUntilNextMinuteBoundary(now))

	onBoundary := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)
	assert.Equal(t, 60, secondsUntilNextMinuteBoundary(onBoundary))
}

func TestStatusClassOf(t *testing.T) {
	assert.Equal(t, "2xx", statusClassOf(204))
	assert.Equal(t, "4xx", statusClassOf(404))
	assert.Equal(t, "5xx", statusClassOf(502))
}

func TestModelFromPath(t *testing.T) {
	assert.Equal(t, "gemini-2.5-pro", modelFromPath("/v1beta/models/gemini-2.5-pro:generateContent"))
	assert.Equal(t, "unknown", modelFromPath("/health"))
}

func TestIsEventStream(t *testing.T) {
	assert.True(t, isEventStream("text/event-stream; charset=utf-8"))
	assert.False(t, isEventStream("application/json"))
}

func TestIsStreamingPath(t *testing.T) {
	assert.True(t, isStreamingPath("/v1beta/models/gemini-2.5-pro:streamGenerateContent"))
	assert.False(t, isStreamingPath("/v1beta/models/gemini-2.5-pro:generateContent"))
}

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapStatusOutcome(t *testing.T) {
	cases := map[int]Outcome{
		200: OutcomeSuccess,
		201: OutcomeSuccess,
		400: OutcomeClientError,
		404: OutcomeClientError,
		429: OutcomeServerError,
		500: OutcomeServerError,
		503: OutcomeServerError,
	}
	for status, want := range cases {
		assert.Equal(t, want, MapStatusOutcome(status))
	}
}

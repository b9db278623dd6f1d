package resilience

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test-open", 3, time.Minute, zerolog.Nop())

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.Report(false)
	}
	require.True(t, b.Allow())
	b.Report(false)

	assert.False(t, b.Allow(), "third consecutive failure should trip the breaker")
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := NewBreaker("test-reset", 3, time.Minute, zerolog.Nop())

	b.Report(false)
	b.Report(false)
	b.Report(true)
	b.Report(false)
	b.Report(false)

	assert.True(t, b.Allow(), "a success in between should reset the run")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	current := time.Date(2023, 4, 15, 10, 0, 0, 0, time.UTC)
	b := NewBreaker("test-probe", 1, time.Minute, zerolog.Nop())
	b.now = func() time.Time { return current }

	b.Report(false)
	require.False(t, b.Allow())

	current = current.Add(2 * time.Minute)
	require.True(t, b.Allow(), "cool-off elapsed, probe admitted")

	b.Report(false)
	assert.False(t, b.Allow(), "failed probe reopens immediately")

	current = current.Add(2 * time.Minute)
	require.True(t, b.Allow())
	b.Report(true)
	assert.True(t, b.Allow(), "successful probe closes the breaker")
}

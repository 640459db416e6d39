package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, BreakerHalfOpen, b.State())

	// One probe allowed, a second concurrent call is not
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	assert.True(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

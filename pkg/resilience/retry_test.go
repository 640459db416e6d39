package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_DelayGrowsExponentially(t *testing.T) {
	policy := Policy{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	assert.Equal(t, 10*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 20*time.Millisecond, policy.Delay(2))
	assert.Equal(t, 40*time.Millisecond, policy.Delay(3))
}

func TestPolicy_DelayCapped(t *testing.T) {
	policy := Policy{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   150 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false,
	}

	for retry := 1; retry <= 5; retry++ {
		assert.LessOrEqual(t, policy.Delay(retry), 150*time.Millisecond)
	}
}

func TestPolicy_JitterBounded(t *testing.T) {
	policy := Policy{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	// Jitter is uniform in [0, BaseDelay), so delays stay within one
	// base delay of the exponential curve and never overlap between
	// consecutive retries.
	for i := 0; i < 100; i++ {
		d1 := policy.Delay(1)
		d2 := policy.Delay(2)
		assert.GreaterOrEqual(t, d1, 10*time.Millisecond)
		assert.Less(t, d1, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d2, 20*time.Millisecond)
		assert.Less(t, d2, 30*time.Millisecond)
	}
}

func TestPolicy_DelayNonDecreasing(t *testing.T) {
	policy := DefaultPolicy()

	var prev time.Duration
	for retry := 1; retry <= 10; retry++ {
		d := policy.Delay(retry)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestPolicy_ZeroRetry(t *testing.T) {
	policy := DefaultPolicy()
	assert.Equal(t, time.Duration(0), policy.Delay(0))
}

func TestPolicy_Normalized(t *testing.T) {
	policy := Policy{MaxRetries: -1}.normalized()
	assert.Equal(t, 0, policy.MaxRetries)
	assert.Positive(t, policy.BaseDelay)
	assert.Positive(t, policy.MaxDelay)
	assert.Positive(t, policy.Multiplier)
}

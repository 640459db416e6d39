package resilience

import (
	"math"
	"math/rand"
	"time"
)

// Policy holds configuration for retry backoff.
//
// MaxRetries counts retries beyond the first attempt: a call with
// MaxRetries=3 makes at most 4 attempts in total.
type Policy struct {
	// MaxRetries is the number of retries allowed after the initial attempt
	MaxRetries int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// Jitter adds randomness to delay to avoid thundering herd
	Jitter bool
}

// DefaultPolicy returns the default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// normalized fills zero values with defaults
func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay computes the backoff before retry number retry (1-based).
// The jitter perturbation is bounded by BaseDelay, which keeps the
// delay sequence non-decreasing until MaxDelay caps it.
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retry-1))
	if p.Jitter {
		delay += rand.Float64() * float64(p.BaseDelay)
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Attempt records one attempt of a logical call. Delay is the backoff
// waited before the attempt started; it is zero for the first attempt.
type Attempt struct {
	Number int           `json:"number"`
	Delay  time.Duration `json:"delay"`
	Err    string        `json:"error,omitempty"`
}

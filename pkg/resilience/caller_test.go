package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchkit/searchkit/pkg/errors"
	"github.com/searchkit/searchkit/pkg/validate"
)

func testCaller(maxRetries int) (*Caller, *[]time.Duration) {
	policy := Policy{
		MaxRetries: maxRetries,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}
	caller := NewCaller(policy)

	var slept []time.Duration
	caller.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return caller, &slept
}

func TestCaller_SuccessOnFirstAttempt(t *testing.T) {
	caller, slept := testCaller(3)

	calls := 0
	outcome := caller.Do(context.Background(), Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			calls++
			return "documents", nil
		},
	})

	require.True(t, outcome.Success())
	assert.Equal(t, "documents", outcome.Value)
	assert.Equal(t, 1, calls)
	assert.Len(t, outcome.Attempts, 1)
	assert.Equal(t, time.Duration(0), outcome.Attempts[0].Delay)
	assert.Empty(t, *slept)
}

func TestCaller_ThrottledThenSuccess(t *testing.T) {
	caller, _ := testCaller(3)

	calls := 0
	outcome := caller.Do(context.Background(), Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			calls++
			if calls == 1 {
				return nil, errors.NewRateLimitError("search").WithStatusCode(429)
			}
			return "documents", nil
		},
	})

	require.True(t, outcome.Success())
	assert.Equal(t, 2, calls)
	require.Len(t, outcome.Attempts, 2)
	assert.Equal(t, time.Duration(0), outcome.Attempts[0].Delay)
	assert.Positive(t, outcome.Attempts[1].Delay)
	assert.NotEmpty(t, outcome.Attempts[0].Err)
	assert.Empty(t, outcome.Attempts[1].Err)
}

func TestCaller_NonRetryableSingleAttempt(t *testing.T) {
	caller, slept := testCaller(3)

	calls := 0
	outcome := caller.Do(context.Background(), Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, errors.NewAuthError("search", "key rejected").WithStatusCode(401)
		},
	})

	require.False(t, outcome.Success())
	assert.Equal(t, 1, calls)
	assert.Len(t, outcome.Attempts, 1)
	assert.Equal(t, errors.KindAuth, outcome.Classification.Kind)
	assert.False(t, outcome.Classification.Retryable)
	assert.Empty(t, *slept)
}

func TestCaller_RetriesExhausted(t *testing.T) {
	caller, slept := testCaller(3)

	calls := 0
	outcome := caller.Do(context.Background(), Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, errors.NewServiceUnavailableError("search", "upstream down").WithStatusCode(503)
		},
	})

	require.False(t, outcome.Success())
	assert.Equal(t, 4, calls) // initial + 3 retries
	assert.Len(t, outcome.Attempts, 4)
	assert.Equal(t, errors.KindServiceUnavailable, outcome.Classification.Kind)

	// Delays are non-decreasing until the cap
	var prev time.Duration
	for _, attempt := range outcome.Attempts {
		assert.GreaterOrEqual(t, attempt.Delay, prev)
		prev = attempt.Delay
	}
	assert.Len(t, *slept, 3)
}

func TestCaller_ValidationShortCircuits(t *testing.T) {
	caller, slept := testCaller(3)

	calls := 0
	outcome := caller.Do(context.Background(), Request{
		Operation: "search",
		Validate: func() validate.Outcome {
			return validate.SearchText("")
		},
		Call: func(ctx context.Context) (interface{}, error) {
			calls++
			return "documents", nil
		},
	})

	require.False(t, outcome.Success())
	assert.Equal(t, 0, calls) // never reached the network
	assert.Equal(t, errors.KindValidation, outcome.Classification.Kind)
	assert.False(t, outcome.Classification.Retryable)
	assert.NotEmpty(t, outcome.Classification.Suggestions)
	assert.Len(t, outcome.Attempts, 1)
	assert.Empty(t, *slept)
}

func TestCaller_ContextCancelled(t *testing.T) {
	caller, _ := testCaller(3)
	caller.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	outcome := caller.Do(ctx, Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, nil
		},
	})

	require.False(t, outcome.Success())
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestCaller_UnknownErrorNotRetried(t *testing.T) {
	caller, _ := testCaller(3)

	calls := 0
	outcome := caller.Do(context.Background(), Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, stderrors.New("something odd")
		},
	})

	require.False(t, outcome.Success())
	assert.Equal(t, 1, calls)
	assert.Equal(t, errors.KindUnknown, outcome.Classification.Kind)
}

func TestCaller_BreakerOpensAfterFailures(t *testing.T) {
	caller, _ := testCaller(0)
	caller.WithBreaker(NewBreaker(2, time.Hour))

	fail := Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			return nil, errors.NewServiceUnavailableError("search", "down").WithStatusCode(503)
		},
	}

	caller.Do(context.Background(), fail)
	caller.Do(context.Background(), fail)

	// Breaker is now open: the call function must not run
	calls := 0
	outcome := caller.Do(context.Background(), Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			calls++
			return "documents", nil
		},
	})

	require.False(t, outcome.Success())
	assert.Equal(t, 0, calls)
	assert.Equal(t, errors.KindServiceUnavailable, outcome.Classification.Kind)
}

type fakeRecorder struct {
	attempts int
	outcomes int
	lastKind errors.Kind
}

func (r *fakeRecorder) RecordAttempt(operation string, retryable bool) {
	r.attempts++
}

func (r *fakeRecorder) RecordOutcome(operation string, kind errors.Kind, success bool, attempts int) {
	r.outcomes++
	r.lastKind = kind
}

func TestCaller_RecorderObservesOutcome(t *testing.T) {
	caller, _ := testCaller(1)
	recorder := &fakeRecorder{}
	caller.WithRecorder(recorder)

	caller.Do(context.Background(), Request{
		Operation: "search",
		Call: func(ctx context.Context) (interface{}, error) {
			return nil, errors.NewRateLimitError("search").WithStatusCode(429)
		},
	})

	assert.Equal(t, 2, recorder.attempts)
	assert.Equal(t, 1, recorder.outcomes)
	assert.Equal(t, errors.KindRateLimit, recorder.lastKind)
}

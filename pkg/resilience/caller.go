package resilience

import (
	"context"
	"time"

	"github.com/searchkit/searchkit/pkg/errors"
	"github.com/searchkit/searchkit/pkg/logging"
	"github.com/searchkit/searchkit/pkg/validate"
)

// Recorder receives call outcomes for metrics collection.
type Recorder interface {
	RecordAttempt(operation string, retryable bool)
	RecordOutcome(operation string, kind errors.Kind, success bool, attempts int)
}

// Request describes one logical remote call.
type Request struct {
	// Operation names the call for logs and metrics
	Operation string
	// Validate performs local pre-flight checks; nil skips validation
	Validate func() validate.Outcome
	// Call performs the remote operation
	Call func(ctx context.Context) (interface{}, error)
}

// Outcome is the terminal result of one logical call, carrying the
// full attempt history. Exactly one of Value and Err is meaningful.
type Outcome struct {
	Value          interface{}
	Err            error
	Classification errors.Classification
	Attempts       []Attempt
}

// Success reports whether the call ultimately succeeded.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Caller composes validation, the remote call, error classification
// and retry backoff into one safe call.
type Caller struct {
	policy   Policy
	breaker  *Breaker
	recorder Recorder
	logger   *logging.Logger

	// sleep waits for the backoff delay, honoring ctx cancellation.
	// Overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller creates a caller with the given retry policy.
func NewCaller(policy Policy) *Caller {
	return &Caller{
		policy: policy.normalized(),
		logger: logging.GetLogger(),
		sleep:  sleepContext,
	}
}

// WithBreaker guards the remote call with a circuit breaker.
func (c *Caller) WithBreaker(b *Breaker) *Caller {
	c.breaker = b
	return c
}

// WithRecorder registers a metrics recorder.
func (c *Caller) WithRecorder(r Recorder) *Caller {
	c.recorder = r
	return c
}

// Do executes one logical call: validate, attempt, classify, retry.
// Validation failures return immediately and never reach the network.
func (c *Caller) Do(ctx context.Context, req Request) Outcome {
	if req.Validate != nil {
		if v := req.Validate(); !v.Valid {
			err := errors.NewValidationError(req.Operation, v.Message)
			outcome := Outcome{
				Err:            err,
				Classification: errors.Classify(err),
				Attempts:       []Attempt{{Number: 1, Err: err.Error()}},
			}
			c.finish(req.Operation, outcome)
			return outcome
		}
	}

	maxAttempts := 1 + c.policy.MaxRetries
	attempts := make([]Attempt, 0, maxAttempts)
	var delay time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome := Outcome{
				Err:            err,
				Classification: errors.Classification{Kind: errors.KindUnknown},
				Attempts:       attempts,
			}
			c.finish(req.Operation, outcome)
			return outcome
		}

		if c.breaker != nil && !c.breaker.Allow() {
			err := errors.NewServiceUnavailableError(req.Operation, "circuit breaker is open").
				WithSuggestions("wait for the cooldown to pass", "check the service health in the portal")
			attempts = append(attempts, Attempt{Number: attempt, Delay: delay, Err: err.Error()})
			outcome := c.retryOrFail(ctx, req, err, attempts, attempt, maxAttempts, &delay)
			if outcome != nil {
				return *outcome
			}
			continue
		}

		value, err := req.Call(ctx)
		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			attempts = append(attempts, Attempt{Number: attempt, Delay: delay})
			if attempt > 1 {
				c.logger.Info("Operation succeeded after retry",
					"operation", req.Operation,
					"attempt", attempt,
				)
			}
			outcome := Outcome{Value: value, Attempts: attempts}
			c.finish(req.Operation, outcome)
			return outcome
		}

		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		attempts = append(attempts, Attempt{Number: attempt, Delay: delay, Err: err.Error()})

		outcome := c.retryOrFail(ctx, req, err, attempts, attempt, maxAttempts, &delay)
		if outcome != nil {
			return *outcome
		}
	}

	// Unreachable: the loop always returns via retryOrFail on the last attempt.
	return Outcome{}
}

// retryOrFail classifies err and either prepares the next attempt
// (returning nil) or produces the terminal outcome.
func (c *Caller) retryOrFail(ctx context.Context, req Request, err error, attempts []Attempt, attempt, maxAttempts int, delay *time.Duration) *Outcome {
	classification := errors.Classify(err)
	if c.recorder != nil {
		c.recorder.RecordAttempt(req.Operation, classification.Retryable)
	}

	if !classification.Retryable {
		c.logger.Debug("Error is not retryable, stopping",
			"operation", req.Operation,
			"kind", string(classification.Kind),
			"attempt", attempt,
		)
		outcome := Outcome{Err: err, Classification: classification, Attempts: attempts}
		c.finish(req.Operation, outcome)
		return &outcome
	}

	if attempt == maxAttempts {
		c.logger.Error("Operation failed after all retry attempts",
			"operation", req.Operation,
			"kind", string(classification.Kind),
			"attempts", attempt,
		)
		outcome := Outcome{Err: err, Classification: classification, Attempts: attempts}
		c.finish(req.Operation, outcome)
		return &outcome
	}

	*delay = c.policy.Delay(attempt)
	c.logger.Debug("Operation failed, retrying",
		"operation", req.Operation,
		"kind", string(classification.Kind),
		"attempt", attempt,
		"max_attempts", maxAttempts,
		"delay", delay.String(),
	)

	if sleepErr := c.sleep(ctx, *delay); sleepErr != nil {
		outcome := Outcome{Err: sleepErr, Classification: classification, Attempts: attempts}
		c.finish(req.Operation, outcome)
		return &outcome
	}
	return nil
}

func (c *Caller) finish(operation string, outcome Outcome) {
	if c.recorder == nil {
		return
	}
	kind := errors.Kind("")
	if !outcome.Success() {
		kind = outcome.Classification.Kind
	}
	c.recorder.RecordOutcome(operation, kind, outcome.Success(), len(outcome.Attempts))
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

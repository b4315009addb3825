package qrecover

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrAttemptsExhausted is returned by Retry when every allowed attempt failed.
var ErrAttemptsExhausted = errors.New("all attempts failed")

// DefaultMaxAttempts is the per-trial attempt budget K.
const DefaultMaxAttempts = 10

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts int
	Strategy    RetryStrategy
	Filter      func(error) bool
	OnFailure   func(attempt int, err error)
}

// RetryStrategy defines the interface for retry behavior
type RetryStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements RetryStrategy
type ExponentialBackoff struct {
	Initial time.Duration
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	return eb.Initial * time.Duration(math.Pow(2, float64(attempt-1)))
}

// NoBackoff retries immediately. Trials redraw their randomness, so waiting buys nothing
// against a deterministic incompatibility.
type NoBackoff struct{}

func (NoBackoff) NextDelay(int) time.Duration {
	return 0
}

// RetryExecution retries only backend failures; placement, configuration and
// cancellation errors abort straight away.
func RetryExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}

/*
Retry runs fn until it succeeds, the policy's filter rejects an error, or MaxAttempts
attempts have failed. fn receives the zero-based attempt number and is expected to redraw
any randomness it depends on.

Returns:
  - int: the number of attempts made
  - error: nil on success, the rejected error, ctx.Err(), or ErrAttemptsExhausted
    wrapping the last failure
*/
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && policy.Strategy != nil {
			if err := sleepWithContext(ctx, policy.Strategy.NextDelay(attempt)); err != nil {
				return attempt, err
			}
		}
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		err := fn(attempt)
		if err == nil {
			return attempt + 1, nil
		}

		lastErr = err
		if policy.OnFailure != nil {
			policy.OnFailure(attempt, err)
		}

		if policy.Filter != nil && !policy.Filter(err) {
			return attempt + 1, err
		}
	}

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, maxAttempts, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package qrecover

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrExecution marks every backend or compilation failure. It is the retryable class.
	ErrExecution = errors.New("execution failed")
	// ErrIncompatible is returned when a circuit uses something the backend cannot run,
	// typically a random filler instruction outside its instruction set.
	ErrIncompatible = errors.New("circuit incompatible with backend")
	// ErrNotMeasured is returned when an unmeasured circuit is submitted.
	ErrNotMeasured = errors.New("circuit has no measurement step")
	// ErrBreakerOpen is returned by a guarded executor while its breaker is open.
	ErrBreakerOpen = errors.New("executor circuit breaker open")
)

/*
Executor runs a measured circuit for a number of shots and returns the outcome counts.
Apart from sampling randomness the result depends only on its inputs. Implementations
must be safe for concurrent use: every trial worker shares one Executor.
*/
type Executor interface {
	Name() string
	Execute(ctx context.Context, qc *Circuit, shots int) (Distribution, error)
}

// ExecutionError wraps a backend failure together with the backend that produced it.
type ExecutionError struct {
	Backend string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%v on %s: %v", ErrExecution, e.Backend, e.Err)
}

// Unwrap exposes both the execution class and the underlying cause to errors.Is.
func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

// throttledExecutor waits on a token bucket before every call.
type throttledExecutor struct {
	Executor
	limiter *RateLimiter
}

// Throttled limits the rate of Execute calls on exec.
func Throttled(exec Executor, limiter *RateLimiter) Executor {
	if limiter == nil {
		return exec
	}
	return &throttledExecutor{Executor: exec, limiter: limiter}
}

func (t *throttledExecutor) Execute(ctx context.Context, qc *Circuit, shots int) (Distribution, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Executor.Execute(ctx, qc, shots)
}

// guardedExecutor refuses calls while its breaker is open and feeds outcomes back into it.
type guardedExecutor struct {
	Executor
	breaker *CircuitBreaker
}

// Guarded wraps exec with a circuit breaker shared by every trial of a run.
func Guarded(exec Executor, breaker *CircuitBreaker) Executor {
	if breaker == nil {
		return exec
	}
	return &guardedExecutor{Executor: exec, breaker: breaker}
}

func (g *guardedExecutor) Execute(ctx context.Context, qc *Circuit, shots int) (Distribution, error) {
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("%w: %s", ErrBreakerOpen, g.Executor.Name())
	}

	counts, err := g.Executor.Execute(ctx, qc, shots)
	if err != nil {
		// An incompatible circuit is a property of its random filler, not of the backend.
		if errors.Is(err, ErrExecution) && !errors.Is(err, ErrIncompatible) {
			g.breaker.RecordFailure()
		}
		return nil, err
	}

	g.breaker.RecordSuccess()
	return counts, nil
}

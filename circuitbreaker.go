package qrecover

import (
	"sync"
	"time"

	"github.com/theapemachine/errnie"
)

/*
BreakerState is the operating mode of a CircuitBreaker guarding an executor.
*/
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // executor calls flow normally
	BreakerOpen                         // backend considered down, calls are refused
	BreakerHalfOpen                     // probing with a limited number of calls
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

/*
CircuitBreaker counts consecutive executor failures across every trial of a run. The
per-trial retry budget only bounds one trial; when the backend itself is down, the
breaker opens and the remaining trials fail fast with ErrBreakerOpen instead of each
burning through K attempts.

The breaker operates in three states:
  - Closed: all calls are allowed
  - Open: maxFailures consecutive failures were seen, calls are refused until resetTimeout passes
  - Half-Open: up to halfOpenMax successful probes close the breaker again
*/
type CircuitBreaker struct {
	mu               sync.Mutex
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMax      int
	failureCount     int
	state            BreakerState
	openTime         time.Time
	halfOpenAttempts int
}

/*
NewCircuitBreaker creates a breaker in the closed state.

Parameters:
  - maxFailures: consecutive failures that open the breaker
  - resetTimeout: how long the breaker stays open before probing
  - halfOpenMax: successful probes needed to close it again
*/
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
		state:        BreakerClosed,
	}
}

// RecordFailure records a failed executor call and opens the breaker at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	switch cb.state {
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.openTime = time.Now()
		errnie.Warn("executor breaker reopened after failed probe")
	case BreakerClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = BreakerOpen
			cb.openTime = time.Now()
			errnie.Warn("executor breaker opened after %d consecutive failures", cb.failureCount)
		}
	}
}

// RecordSuccess records a successful executor call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerHalfOpen:
		cb.halfOpenAttempts++
		if cb.halfOpenAttempts >= cb.halfOpenMax {
			cb.state = BreakerClosed
			cb.failureCount = 0
			cb.halfOpenAttempts = 0
			errnie.Info("executor breaker closed")
		}
	case BreakerClosed:
		cb.failureCount = 0
	}
}

// Allow reports whether an executor call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(cb.openTime) > cb.resetTimeout {
			cb.state = BreakerHalfOpen
			cb.halfOpenAttempts = 0
			return true
		}
		return false
	case BreakerHalfOpen:
		return cb.halfOpenAttempts < cb.halfOpenMax
	default:
		return false
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

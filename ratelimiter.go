package qrecover

import (
	"context"
	"sync"
	"time"
)

/*
RateLimiter is a token bucket placed in front of an Executor. Remote backends meter
submissions, and a run with many trial workers would otherwise hammer them with
concurrent jobs. Tokens refill one per refillRate up to maxTokens, so short bursts pass
straight through while sustained load is paced.
*/
type RateLimiter struct {
	tokens     int           // currently available tokens
	maxTokens  int           // burst capacity
	refillRate time.Duration // time per token
	lastRefill time.Time
	mu         sync.Mutex
}

/*
NewRateLimiter creates a full token bucket.

Parameters:
  - maxTokens: burst capacity
  - refillRate: duration between token replenishments

Example:

	limiter := NewRateLimiter(10, 100*time.Millisecond) // 10 calls/second, bursts of 10
*/
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// TryAcquire takes a token if one is available.
func (rl *RateLimiter) TryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

/*
Wait blocks until a token is available or ctx is done.

Returns:
  - error: nil once a token was taken, ctx.Err() otherwise
*/
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.TryAcquire() {
			return nil
		}
		if err := sleepWithContext(ctx, rl.untilNext()); err != nil {
			return err
		}
	}
}

// Available returns the number of tokens left after refilling.
func (rl *RateLimiter) Available() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// untilNext returns how long until the next token arrives.
func (rl *RateLimiter) untilNext() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.refillRate <= 0 {
		return time.Millisecond
	}
	wait := rl.refillRate - time.Since(rl.lastRefill)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// refill adds one token per elapsed refillRate. The caller holds the lock.
func (rl *RateLimiter) refill() {
	if rl.refillRate <= 0 {
		rl.tokens = rl.maxTokens
		return
	}

	elapsed := time.Since(rl.lastRefill)
	tokensToAdd := int(elapsed / rl.refillRate)

	if tokensToAdd > 0 {
		rl.tokens = min(rl.maxTokens, rl.tokens+tokensToAdd)
		// Only complete periods move lastRefill forward.
		rl.lastRefill = rl.lastRefill.Add(time.Duration(tokensToAdd) * rl.refillRate)
	}
}

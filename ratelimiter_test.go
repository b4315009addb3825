package qrecover

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewRateLimiter(t *testing.T) {
	Convey("Given a new rate limiter", t, func() {
		limiter := NewRateLimiter(100, time.Second)

		Convey("It should start full", func() {
			So(limiter, ShouldNotBeNil)
			So(limiter.tokens, ShouldEqual, 100)
			So(limiter.maxTokens, ShouldEqual, 100)
			So(limiter.refillRate, ShouldEqual, time.Second)
		})
	})
}

func TestRateLimiterAcquire(t *testing.T) {
	Convey("Given a rate limiter with 2 tokens", t, func() {
		limiter := NewRateLimiter(2, time.Second)

		Convey("The burst passes and the next call is refused", func() {
			So(limiter.TryAcquire(), ShouldBeTrue)
			So(limiter.TryAcquire(), ShouldBeTrue)
			So(limiter.TryAcquire(), ShouldBeFalse)
		})
	})
}

func TestRateLimiterRefill(t *testing.T) {
	Convey("Given a rate limiter", t, func() {
		limiter := NewRateLimiter(5, 100*time.Millisecond)

		Convey("It should refill tokens over time", func() {
			So(limiter.TryAcquire(), ShouldBeTrue)
			So(limiter.TryAcquire(), ShouldBeTrue)
			So(limiter.Available(), ShouldEqual, 3)

			time.Sleep(250 * time.Millisecond)

			So(limiter.Available(), ShouldEqual, 5)
		})
	})
}

func TestRateLimiterWait(t *testing.T) {
	Convey("Given an empty bucket", t, func() {
		limiter := NewRateLimiter(1, 30*time.Millisecond)
		So(limiter.TryAcquire(), ShouldBeTrue)

		Convey("Wait blocks until the next token", func() {
			start := time.Now()
			So(limiter.Wait(context.Background()), ShouldBeNil)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 20*time.Millisecond)
		})

		Convey("Wait gives up when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
			defer cancel()

			err := limiter.Wait(ctx)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

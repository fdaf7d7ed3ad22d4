package limiters

import (
	"context"
	"math"
	"time"
)

const maxDuration = time.Duration(math.MaxInt64)

// DelayFunc maps a post-increment failure count to the wait applied before
// answering. Implementations must be monotonically non-decreasing.
type DelayFunc func(attempts int) time.Duration

// NoDelay never delays.
func NoDelay(int) time.Duration { return 0 }

// LinearDelay waits step per recorded failure.
func LinearDelay(step time.Duration) DelayFunc {
	return func(attempts int) time.Duration {
		if attempts <= 0 {
			return 0
		}
		if step > 0 && time.Duration(attempts) > maxDuration/step {
			return maxDuration
		}
		return time.Duration(attempts) * step
	}
}

// ExponentialDelay waits base after the first failure and doubles thereafter,
// saturating instead of overflowing.
func ExponentialDelay(base time.Duration) DelayFunc {
	return func(attempts int) time.Duration {
		if attempts <= 0 {
			return 0
		}
		shift := attempts - 1
		if shift > 20 {
			shift = 20
		}
		if base > 0 && base > maxDuration>>shift {
			return maxDuration
		}
		return base << shift
	}
}

// Wait blocks the calling goroutine for d. It returns early with ctx.Err()
// when ctx is done; other goroutines are never affected.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

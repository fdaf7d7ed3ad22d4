package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcache/internal/store"
)

// ErrThrottleUnavailable indicates the throttle's store could not be read or written.
var ErrThrottleUnavailable = errors.New("throttle backend unavailable")

// AttemptPolicy holds the thresholds of one [AttemptThrottle].
type AttemptPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	Delay           DelayFunc
	MaxDelay        time.Duration // 0 = uncapped
}

// Decision is the outcome of [AttemptThrottle.Check].
type Decision struct {
	Allowed           bool
	RemainingAttempts int
	RetryAfter        time.Duration
}

// Failure is the outcome of [AttemptThrottle.RecordFailure].
type Failure struct {
	Attempts          int
	RemainingAttempts int
	Delay             time.Duration
	Locked            bool
	RetryAfter        time.Duration
}

// AttemptThrottle counts failures per key and locks the key out once the
// policy threshold is reached. A lapsed lockout reads as a fresh record.
type AttemptThrottle struct {
	store  store.Store[AttemptRecord]
	policy AttemptPolicy
	now    func() time.Time
}

// NewAttemptThrottle creates a throttle over st. clock may be nil.
func NewAttemptThrottle(st store.Store[AttemptRecord], policy AttemptPolicy, clock func() time.Time) *AttemptThrottle {
	if policy.Delay == nil {
		policy.Delay = NoDelay
	}
	if clock == nil {
		clock = time.Now
	}
	return &AttemptThrottle{store: st, policy: policy, now: clock}
}

// Policy returns the throttle's policy.
func (t *AttemptThrottle) Policy() AttemptPolicy {
	return t.policy
}

// Check reports whether key may attempt again without recording anything.
func (t *AttemptThrottle) Check(ctx context.Context, key string) (Decision, error) {
	if t == nil {
		return Decision{Allowed: true}, nil
	}
	full := Decision{Allowed: true, RemainingAttempts: t.policy.MaxAttempts}

	rec, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if !ok {
		return full, nil
	}

	now := t.now()
	switch {
	case rec.locked(now):
		return Decision{RetryAfter: rec.LockedUntil.Sub(now)}, nil
	case rec.lockLapsed(now):
		return full, nil
	}

	remaining := t.policy.MaxAttempts - rec.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, RemainingAttempts: remaining}, nil
}

// RecordFailure increments the failure count for key. Failures do not carry
// over a completed lockout: the first failure after it counts as 1. Reaching
// MaxAttempts locks the key for LockoutDuration; failures recorded while
// locked do not extend the lock.
func (t *AttemptThrottle) RecordFailure(ctx context.Context, key string) (Failure, error) {
	if t == nil {
		return Failure{}, nil
	}

	now := t.now()
	rec, err := t.store.Update(ctx, key, func(cur AttemptRecord, ok bool) (AttemptRecord, bool) {
		if !ok || cur.lockLapsed(now) {
			cur = AttemptRecord{}
		}
		wasLocked := cur.locked(now)
		cur.FailedAttempts++
		if !wasLocked && cur.FailedAttempts >= t.policy.MaxAttempts {
			cur.LockedUntil = now.Add(t.policy.LockoutDuration)
		}
		return cur, true
	})
	if err != nil {
		return Failure{}, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}

	out := Failure{
		Attempts: rec.FailedAttempts,
		Delay:    t.DelayFor(rec.FailedAttempts),
	}
	if rec.locked(now) {
		out.Locked = true
		out.RetryAfter = rec.LockedUntil.Sub(now)
	} else {
		out.RemainingAttempts = t.policy.MaxAttempts - rec.FailedAttempts
	}
	return out, nil
}

// Reset clears key to zero attempts and no lock.
func (t *AttemptThrottle) Reset(ctx context.Context, key string) error {
	if t == nil {
		return nil
	}
	if err := t.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}

// DelayFor returns the capped policy delay for a failure count.
func (t *AttemptThrottle) DelayFor(attempts int) time.Duration {
	if t == nil {
		return 0
	}
	d := t.policy.Delay(attempts)
	if d < 0 {
		// a custom curve that wrapped around is treated as saturated
		d = maxDuration
	}
	if t.policy.MaxDelay > 0 && d > t.policy.MaxDelay {
		return t.policy.MaxDelay
	}
	return d
}

// ApplyDelay suspends the calling request for d.
func (t *AttemptThrottle) ApplyDelay(ctx context.Context, d time.Duration) error {
	return Wait(ctx, d)
}

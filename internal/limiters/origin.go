package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcache/internal/store"
)

// OriginPolicy holds the fixed-window quota of an [OriginLimiter].
type OriginPolicy struct {
	Limit  int
	Window time.Duration
}

// OriginDecision is the outcome of [OriginLimiter.CheckAndIncrement].
type OriginDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// OriginLimiter caps requests per origin in fixed windows. It has no lockout:
// the quota returns when the window elapses.
type OriginLimiter struct {
	store  store.Store[OriginWindowRecord]
	policy OriginPolicy
	now    func() time.Time
}

// NewOriginLimiter creates a limiter over st. The store TTL should equal the
// window so idle origins disappear. clock may be nil.
func NewOriginLimiter(st store.Store[OriginWindowRecord], policy OriginPolicy, clock func() time.Time) *OriginLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &OriginLimiter{store: st, policy: policy, now: clock}
}

// Policy returns the limiter's policy.
func (l *OriginLimiter) Policy() OriginPolicy {
	return l.policy
}

// CheckAndIncrement counts one request from origin. A request over quota is
// denied without being counted.
func (l *OriginLimiter) CheckAndIncrement(ctx context.Context, origin string) (OriginDecision, error) {
	if l == nil {
		return OriginDecision{Allowed: true}, nil
	}

	now := l.now()
	var out OriginDecision
	_, err := l.store.Update(ctx, origin, func(cur OriginWindowRecord, ok bool) (OriginWindowRecord, bool) {
		expired := !ok || now.Sub(cur.WindowStart) >= l.policy.Window
		if expired {
			cur = OriginWindowRecord{WindowStart: now}
		}
		if cur.Count >= l.policy.Limit {
			out = OriginDecision{RetryAfter: cur.WindowStart.Add(l.policy.Window).Sub(now)}
			return cur, false
		}
		cur.Count++
		out = OriginDecision{Allowed: true, Remaining: l.policy.Limit - cur.Count}
		return cur, true
	})
	if err != nil {
		return OriginDecision{}, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return out, nil
}

// Reset clears the window for origin.
func (l *OriginLimiter) Reset(ctx context.Context, origin string) error {
	if l == nil {
		return nil
	}
	if err := l.store.Delete(ctx, origin); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}

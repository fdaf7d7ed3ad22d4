package rate

import (
	"context"
	"time"

	"github.com/MrEthical07/authcache/internal/limiters"
)

// Config holds the composition switches.
type Config struct {
	// EnableOriginThrottle turns on the per-origin dimension. It is normally
	// off in development so shared loopback origins do not throttle tests.
	EnableOriginThrottle bool
}

// Decision is the merged outcome of an identity and an origin check.
type Decision struct {
	Allowed           bool
	RemainingAttempts int
	RetryAfter        time.Duration
	// DeniedBy names the dimension that denied: "identity", "origin" or "".
	DeniedBy string
}

// Failure is the merged outcome of recording a failure on both dimensions.
type Failure struct {
	Attempts          int
	RemainingAttempts int
	Delay             time.Duration
	Locked            bool
	RetryAfter        time.Duration
}

// Limiter evaluates one identity throttle and one origin throttle together
// and returns the most restrictive result.
type Limiter struct {
	identity *limiters.AttemptThrottle
	origin   *limiters.AttemptThrottle
	config   Config
}

// New creates a composed [Limiter]. origin may be nil.
func New(identity, origin *limiters.AttemptThrottle, cfg Config) *Limiter {
	return &Limiter{
		identity: identity,
		origin:   origin,
		config:   cfg,
	}
}

// OriginActive reports whether origin-scoped limiting applies to ip.
func (l *Limiter) OriginActive(ip string) bool {
	return l.config.EnableOriginThrottle && l.origin != nil && ip != ""
}

// Check evaluates both dimensions. A denial on either side denies; when both
// allow, the smaller remaining budget is reported.
func (l *Limiter) Check(ctx context.Context, identity, ip string) (Decision, error) {
	id, err := l.identity.Check(ctx, identity)
	if err != nil {
		return Decision{}, err
	}
	if !l.OriginActive(ip) {
		return fromSingle(id, "identity"), nil
	}

	org, err := l.origin.Check(ctx, ip)
	if err != nil {
		return Decision{}, err
	}
	return Merge(id, org), nil
}

// Merge combines an identity decision with an origin decision.
func Merge(identity, origin limiters.Decision) Decision {
	switch {
	case !identity.Allowed && !origin.Allowed:
		d := Decision{RetryAfter: identity.RetryAfter, DeniedBy: "identity"}
		if origin.RetryAfter > identity.RetryAfter {
			d.RetryAfter = origin.RetryAfter
			d.DeniedBy = "origin"
		}
		return d
	case !identity.Allowed:
		return fromSingle(identity, "identity")
	case !origin.Allowed:
		return fromSingle(origin, "origin")
	}

	remaining := identity.RemainingAttempts
	if origin.RemainingAttempts < remaining {
		remaining = origin.RemainingAttempts
	}
	return Decision{Allowed: true, RemainingAttempts: remaining}
}

// RecordFailure records a failure against both dimensions. The delay follows
// the larger post-increment count.
func (l *Limiter) RecordFailure(ctx context.Context, identity, ip string) (Failure, error) {
	id, err := l.identity.RecordFailure(ctx, identity)
	if err != nil {
		return Failure{}, err
	}
	out := Failure{
		Attempts:          id.Attempts,
		RemainingAttempts: id.RemainingAttempts,
		Delay:             id.Delay,
		Locked:            id.Locked,
		RetryAfter:        id.RetryAfter,
	}
	if !l.OriginActive(ip) {
		return out, nil
	}

	org, err := l.origin.RecordFailure(ctx, ip)
	if err != nil {
		return Failure{}, err
	}
	if org.Attempts > out.Attempts {
		out.Attempts = org.Attempts
		out.Delay = org.Delay
	}
	if org.RemainingAttempts < out.RemainingAttempts {
		out.RemainingAttempts = org.RemainingAttempts
	}
	if org.Locked {
		out.Locked = true
		out.RemainingAttempts = 0
		if org.RetryAfter > out.RetryAfter {
			out.RetryAfter = org.RetryAfter
		}
	}
	return out, nil
}

// Reset clears the identity record after a successful authentication. The
// origin record is left to expire on its own window so one account's success
// cannot wipe failures recorded against other accounts from the same address.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	return l.identity.Reset(ctx, identity)
}

// ApplyDelay suspends the calling request for d.
func (l *Limiter) ApplyDelay(ctx context.Context, d time.Duration) error {
	return limiters.Wait(ctx, d)
}

func fromSingle(d limiters.Decision, side string) Decision {
	out := Decision{
		Allowed:           d.Allowed,
		RemainingAttempts: d.RemainingAttempts,
		RetryAfter:        d.RetryAfter,
	}
	if !d.Allowed {
		out.DeniedBy = side
	}
	return out
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authcache"
)

// OriginCheck is satisfied by Engine.CheckSignup and
// Engine.CheckPasswordResetRequest.
type OriginCheck func(ctx context.Context) (authcache.ThrottleDecision, error)

// OriginGate runs check before next. Denied requests receive generic, the
// same handler the route uses for accepted requests, so callers cannot tell
// a throttled request from a successful one. Backend errors are written
// with [WriteError].
//
// Do not wrap handlers that call Engine.Signup or Engine.RequestPasswordReset;
// those flows already consume the origin budget.
func OriginGate(check OriginCheck, generic http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := check(r.Context())
			if err != nil {
				WriteError(w, err)
				return
			}
			if !decision.Allowed {
				generic.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the status code matching an Engine error.
func WriteError(w http.ResponseWriter, err error) {
	if d, ok := authcache.RetryAfter(err); ok {
		setRetryAfter(w, d)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	switch {
	case authcache.IsUnauthorized(err):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, authcache.ErrPasswordPolicy), errors.Is(err, authcache.ErrPasswordReuse):
		http.Error(w, "bad request", http.StatusBadRequest)
	case errors.Is(err, authcache.ErrTokenValidityUnavailable),
		errors.Is(err, authcache.ErrThrottleUnavailable),
		errors.Is(err, authcache.ErrEngineNotReady):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}

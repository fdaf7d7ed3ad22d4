package authcache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned by Login and ChangePassword for any
	// identifier/password mismatch, including unknown identifiers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned while a login identity or origin is locked out.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrPasswordChangeRateLimited is returned while password changes for a user are locked out.
	ErrPasswordChangeRateLimited = errors.New("password change rate limited")
	// ErrTokenInvalid is returned for tokens that fail signature or claim checks.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenRevoked is returned for tokens issued before the user's last password change.
	ErrTokenRevoked = errors.New("token revoked by password change")
	// ErrTokenValidityUnavailable is returned under FailClosed when the password
	// epoch cannot be loaded.
	ErrTokenValidityUnavailable = errors.New("token validity unavailable")
	// ErrUserNotFound is returned by UserProvider implementations for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordPolicy is returned when a new password violates length bounds.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrAccountExists is returned by UserProvider.CreateUser for duplicate identifiers.
	ErrAccountExists = errors.New("account already exists")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrThrottleUnavailable is returned under ThrottleFailClosed when a
	// throttle backend cannot be reached.
	ErrThrottleUnavailable = errors.New("throttle backend unavailable")
)

// RateLimitError carries the retry hint of a throttle denial.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// RetryAfter extracts the retry hint from err, if it carries one.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

func rateLimited(sentinel error, retryAfter time.Duration) error {
	return &RateLimitError{Err: sentinel, RetryAfter: retryAfter}
}

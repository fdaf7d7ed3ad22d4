package authcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcache/internal/epoch"
	"github.com/MrEthical07/authcache/internal/limiters"
	"github.com/MrEthical07/authcache/internal/rate"
	"github.com/MrEthical07/authcache/jwt"
	"github.com/MrEthical07/authcache/password"
	"github.com/google/uuid"
)

// Engine owns the security caches for the lifetime of the process. Build one
// with [New] and share it between handlers.
type Engine struct {
	config       Config
	userProvider UserProvider
	notifier     ResetNotifier
	logger       *slog.Logger
	now          func() time.Time

	epochs                *epoch.Cache
	loginLimiter          *rate.Limiter
	passwordChangeLimiter *rate.Limiter
	signupLimiter         *limiters.OriginLimiter
	forgotLimiter         *limiters.OriginLimiter

	passwords *password.Hasher
	tokens    *jwt.Manager
	audit     *auditDispatcher
	metrics   *Metrics
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped because the queue was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the Engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// EpochCacheSize returns the number of password epochs held in memory.
func (e *Engine) EpochCacheSize() int {
	if e == nil || e.epochs == nil {
		return 0
	}
	return e.epochs.Len()
}

// Config returns a copy of the Engine's configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) ready() bool {
	return e != nil && e.userProvider != nil && e.epochs != nil
}

/*
====================================
LOGIN THROTTLE
====================================
*/

// CheckLogin evaluates the login throttle for identifier and the client IP
// carried by ctx without recording anything.
func (e *Engine) CheckLogin(ctx context.Context, identifier string) (ThrottleDecision, error) {
	if !e.ready() {
		return ThrottleDecision{}, ErrEngineNotReady
	}
	d, err := e.loginLimiter.Check(ctx, normalizeIdentifier(identifier), ClientIPFromContext(ctx))
	return e.decision(ctx, "login", d, err)
}

// RecordLoginFailure counts a failed login against identifier and the client IP.
func (e *Engine) RecordLoginFailure(ctx context.Context, identifier string) (ThrottleFailure, error) {
	if !e.ready() {
		return ThrottleFailure{}, ErrEngineNotReady
	}
	f, err := e.loginLimiter.RecordFailure(ctx, normalizeIdentifier(identifier), ClientIPFromContext(ctx))
	return e.failure(ctx, "login", f, err)
}

// ResetLogin clears the login throttle for identifier. Failures recorded
// against the client IP stay until their window expires.
func (e *Engine) ResetLogin(ctx context.Context, identifier string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	err := e.loginLimiter.Reset(ctx, normalizeIdentifier(identifier))
	return e.throttleError(ctx, "login", err)
}

/*
====================================
PASSWORD CHANGE THROTTLE
====================================
*/

func (e *Engine) CheckPasswordChange(ctx context.Context, userID string) (ThrottleDecision, error) {
	if !e.ready() {
		return ThrottleDecision{}, ErrEngineNotReady
	}
	d, err := e.passwordChangeLimiter.Check(ctx, userID, ClientIPFromContext(ctx))
	return e.decision(ctx, "password_change", d, err)
}

func (e *Engine) RecordPasswordChangeFailure(ctx context.Context, userID string) (ThrottleFailure, error) {
	if !e.ready() {
		return ThrottleFailure{}, ErrEngineNotReady
	}
	f, err := e.passwordChangeLimiter.RecordFailure(ctx, userID, ClientIPFromContext(ctx))
	return e.failure(ctx, "password_change", f, err)
}

func (e *Engine) ResetPasswordChange(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	err := e.passwordChangeLimiter.Reset(ctx, userID)
	return e.throttleError(ctx, "password_change", err)
}

/*
====================================
ORIGIN LIMITS
====================================
*/

// CheckSignup counts one signup request from the client IP in ctx. Requests
// without an origin are not limited.
func (e *Engine) CheckSignup(ctx context.Context) (ThrottleDecision, error) {
	if !e.ready() {
		return ThrottleDecision{}, ErrEngineNotReady
	}
	return e.checkOrigin(ctx, "signup", e.signupLimiter)
}

// CheckPasswordResetRequest counts one forgot-password request from the client IP in ctx.
func (e *Engine) CheckPasswordResetRequest(ctx context.Context) (ThrottleDecision, error) {
	if !e.ready() {
		return ThrottleDecision{}, ErrEngineNotReady
	}
	return e.checkOrigin(ctx, "forgot_password", e.forgotLimiter)
}

// ResetOrigin clears the signup and forgot-password windows of ip.
func (e *Engine) ResetOrigin(ctx context.Context, ip string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.signupLimiter.Reset(ctx, ip); err != nil {
		return e.throttleError(ctx, "signup", err)
	}
	return e.throttleError(ctx, "forgot_password", e.forgotLimiter.Reset(ctx, ip))
}

func (e *Engine) checkOrigin(ctx context.Context, name string, l *limiters.OriginLimiter) (ThrottleDecision, error) {
	ip := ClientIPFromContext(ctx)
	if ip == "" {
		return ThrottleDecision{Allowed: true, RemainingAttempts: l.Policy().Limit}, nil
	}
	d, err := l.CheckAndIncrement(ctx, ip)
	if err != nil {
		if err := e.throttleError(ctx, name, err); err != nil {
			return ThrottleDecision{}, err
		}
		return ThrottleDecision{Allowed: true}, nil
	}
	return ThrottleDecision{Allowed: d.Allowed, RemainingAttempts: d.Remaining, RetryAfter: d.RetryAfter}, nil
}

/*
====================================
TOKEN VALIDITY
====================================
*/

// SetPasswordChangedAt records a password change for userID and returns the
// effective epoch in Unix seconds. Writes older than the cached epoch are
// ignored, logged and audited; they never fail.
func (e *Engine) SetPasswordChangedAt(ctx context.Context, userID string, changedAt time.Time) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.epochs.SetPasswordChangedAt(ctx, userID, changedAt.Unix()), nil
}

// ValidateTokenEpoch reports whether a token issued at issuedAt postdates the
// user's last password change. Load failures wrap ErrTokenValidityUnavailable
// and are never reported as false.
func (e *Engine) ValidateTokenEpoch(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	ok, err := e.epochs.ValidateToken(ctx, userID, issuedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrTokenValidityUnavailable, err)
	}
	return ok, nil
}

// InvalidateEpoch drops the cached epoch for userID so the next check reloads it.
func (e *Engine) InvalidateEpoch(userID string) {
	if !e.ready() {
		return
	}
	e.epochs.Invalidate(userID)
}

// ApplyDelay suspends the calling request for d, or until ctx is done.
func (e *Engine) ApplyDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if e != nil {
		e.metrics.Inc(MetricDelayApplied)
	}
	return limiters.Wait(ctx, d)
}

// failureDelay applies the post-failure delay of flow. An interrupted delay
// still ends in the failure response; it is only logged.
func (e *Engine) failureDelay(ctx context.Context, flow string, d time.Duration) {
	if err := e.ApplyDelay(ctx, d); err != nil {
		e.logger.DebugContext(ctx, "authcache: failure delay interrupted",
			"flow", flow,
			"delay", d,
			"error", err)
	}
}

func (e *Engine) onStaleEpochWrite(ctx context.Context, w epoch.StaleWrite) {
	e.metrics.Inc(MetricEpochStaleWrite)
	e.emitAudit(ctx, AuditEpochStaleWrite, w.UserID, true, nil, map[string]string{
		"attempted": strconv.FormatInt(w.Attempted, 10),
		"current":   strconv.FormatInt(w.Current, 10),
	})
}

/*
====================================
HELPERS
====================================
*/

func (e *Engine) decision(ctx context.Context, name string, d rate.Decision, err error) (ThrottleDecision, error) {
	if err != nil {
		if err := e.throttleError(ctx, name, err); err != nil {
			return ThrottleDecision{}, err
		}
		return ThrottleDecision{Allowed: true}, nil
	}
	return ThrottleDecision{
		Allowed:           d.Allowed,
		RemainingAttempts: d.RemainingAttempts,
		RetryAfter:        d.RetryAfter,
	}, nil
}

func (e *Engine) failure(ctx context.Context, name string, f rate.Failure, err error) (ThrottleFailure, error) {
	if err != nil {
		return ThrottleFailure{}, e.throttleError(ctx, name, err)
	}
	return ThrottleFailure{
		Attempts:          f.Attempts,
		RemainingAttempts: f.RemainingAttempts,
		Delay:             f.Delay,
		Locked:            f.Locked,
		RetryAfter:        f.RetryAfter,
	}, nil
}

// throttleError applies the throttle failure policy. Under FailOpen the
// error is logged and swallowed.
func (e *Engine) throttleError(ctx context.Context, name string, err error) error {
	if err == nil {
		return nil
	}
	e.metrics.Inc(MetricThrottleBackendError)
	if e.config.Security.ThrottleFailurePolicy == FailClosed {
		return fmt.Errorf("%w: %s: %v", ErrThrottleUnavailable, name, err)
	}
	e.logger.ErrorContext(ctx, "authcache: throttle backend failed, allowing request",
		"throttle", name,
		"error", err)
	return nil
}

func (e *Engine) emitAudit(ctx context.Context, eventType, userID string, success bool, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: e.now(),
		EventType: eventType,
		UserID:    userID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = auditErrorCode(err)
	}
	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrPasswordChangeRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrTokenValidityUnavailable), errors.Is(err, epoch.ErrEpochUnavailable):
		return "epoch_unavailable"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	default:
		return "internal_error"
	}
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

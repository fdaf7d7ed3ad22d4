package authcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Validate parses an access token and checks it against the user's password
// epoch. Tokens issued before the last password change fail with
// ErrTokenRevoked. When the epoch cannot be loaded the token validity
// FailurePolicy decides: FailClosed returns ErrTokenValidityUnavailable,
// FailOpen accepts the token with AuthResult.Degraded set.
func (e *Engine) Validate(ctx context.Context, token string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		e.metrics.Inc(MetricTokenInvalid)
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	issuedAt := claims.IssuedAt.Time

	ok, err := e.ValidateTokenEpoch(ctx, claims.UID, issuedAt)
	if err != nil {
		e.metrics.Inc(MetricEpochLoadFailure)
		e.emitAudit(ctx, AuditEpochUnavailable, claims.UID, false, err, nil)
		if e.config.TokenValidity.FailurePolicy == FailClosed {
			return nil, err
		}
		e.logger.ErrorContext(ctx, "authcache: password epoch unavailable, accepting token",
			"user_id", claims.UID,
			"error", err)
		e.metrics.Inc(MetricTokenDegraded)
		return &AuthResult{UserID: claims.UID, IssuedAt: issuedAt, Degraded: true}, nil
	}
	if !ok {
		e.metrics.Inc(MetricTokenRevoked)
		e.emitAudit(ctx, AuditTokenRevoked, claims.UID, false, ErrTokenRevoked, nil)
		return nil, ErrTokenRevoked
	}

	e.metrics.Inc(MetricTokenValid)
	return &AuthResult{UserID: claims.UID, IssuedAt: issuedAt}, nil
}

// IsUnauthorized reports whether err should be answered as 401 rather than
// 5xx or 429.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrInvalidCredentials)
}

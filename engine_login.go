package authcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Login verifies identifier and password under the login throttle and
// issues an access token. Unknown identifiers and wrong passwords both yield
// ErrInvalidCredentials after the same amount of hashing work. Denials wrap
// ErrLoginRateLimited in a *RateLimitError.
func (e *Engine) Login(ctx context.Context, identifier, plaintext string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	ident := normalizeIdentifier(identifier)

	decision, err := e.CheckLogin(ctx, ident)
	if err != nil {
		return LoginResult{}, err
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricLoginRateLimited)
		e.emitAudit(ctx, AuditLoginRateLimited, "", false, ErrLoginRateLimited, nil)
		return LoginResult{}, rateLimited(ErrLoginRateLimited, decision.RetryAfter)
	}

	user, err := e.userProvider.GetUserByIdentifier(ctx, ident)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, fmt.Errorf("authcache: user lookup: %w", err)
		}
		e.passwords.VerifyDummy(plaintext)
		return LoginResult{}, e.loginFailed(ctx, ident, "")
	}

	ok, err := e.passwords.Verify(plaintext, user.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "authcache: password verification error",
			"user_id", user.UserID,
			"error", err)
	}
	if !ok {
		return LoginResult{}, e.loginFailed(ctx, ident, user.UserID)
	}

	if err := e.ResetLogin(ctx, ident); err != nil {
		return LoginResult{}, err
	}
	// Bring the cache in line with the durable record before issuing.
	if _, err := e.SetPasswordChangedAt(ctx, user.UserID, user.PasswordEpoch()); err != nil {
		return LoginResult{}, err
	}

	token, claims, err := e.tokens.CreateAccess(user.UserID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("authcache: issue token: %w", err)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, user.UserID, true, nil, nil)

	return LoginResult{
		UserID:      user.UserID,
		AccessToken: token,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, ident, userID string) error {
	e.metrics.Inc(MetricLoginFailure)

	failure, err := e.RecordLoginFailure(ctx, ident)
	if err != nil {
		return err
	}
	e.emitAudit(ctx, AuditLoginFailure, userID, false, ErrInvalidCredentials, map[string]string{
		"attempts": strconv.Itoa(failure.Attempts),
	})
	if failure.Locked {
		e.emitAudit(ctx, AuditLoginLocked, userID, false, ErrLoginRateLimited, map[string]string{
			"retry_after": failure.RetryAfter.String(),
		})
	}

	e.failureDelay(ctx, "login", failure.Delay)
	return ErrInvalidCredentials
}

package authcache

import (
	"context"
	"errors"
	"fmt"
)

// ChangePassword verifies the current password under the password-change
// throttle, stores the new hash and advances the user's password epoch so
// every token issued before the change is rejected.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	decision, err := e.CheckPasswordChange(ctx, userID)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricPasswordChangeRateLimited)
		e.emitAudit(ctx, AuditPasswordChangeLimited, userID, false, ErrPasswordChangeRateLimited, nil)
		return rateLimited(ErrPasswordChangeRateLimited, decision.RetryAfter)
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("authcache: user lookup: %w", err)
	}

	ok, err := e.passwords.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "authcache: password verification error",
			"user_id", userID,
			"error", err)
	}
	if !ok {
		e.metrics.Inc(MetricPasswordChangeInvalidOld)
		failure, err := e.RecordPasswordChangeFailure(ctx, userID)
		if err != nil {
			return err
		}
		e.emitAudit(ctx, AuditPasswordChangeFailure, userID, false, ErrInvalidCredentials, nil)
		e.failureDelay(ctx, "password_change", failure.Delay)
		return ErrInvalidCredentials
	}

	if err := e.passwords.CheckLength(newPassword); err != nil {
		e.emitAudit(ctx, AuditPasswordChangeFailure, userID, false, ErrPasswordPolicy, nil)
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	if same, _ := e.passwords.Verify(newPassword, user.PasswordHash); same {
		e.metrics.Inc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, AuditPasswordChangeFailure, userID, false, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("authcache: hash password: %w", err)
	}
	updated, err := e.userProvider.UpdatePasswordHash(ctx, userID, hash)
	if err != nil {
		return fmt.Errorf("authcache: store password: %w", err)
	}

	changedAt := updated.PasswordChangedAt
	if changedAt.IsZero() {
		changedAt = updated.UpdatedAt
	}
	if changedAt.IsZero() {
		changedAt = e.now()
	}
	if _, err := e.SetPasswordChangedAt(ctx, userID, changedAt); err != nil {
		return err
	}
	if err := e.ResetPasswordChange(ctx, userID); err != nil {
		return err
	}

	e.metrics.Inc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, AuditPasswordChanged, userID, true, nil, nil)
	return nil
}

// RequestPasswordReset handles a forgot-password request. It always returns
// nil for well-formed calls: throttled requests, unknown identifiers and
// notifier failures are only logged and audited.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	decision, err := e.CheckPasswordResetRequest(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "authcache: password reset request dropped", "error", err)
		return nil
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricPasswordResetRateLimited)
		e.emitAudit(ctx, AuditPasswordResetLimited, "", false, nil, map[string]string{
			"retry_after": decision.RetryAfter.String(),
		})
		return nil
	}
	e.metrics.Inc(MetricPasswordResetRequest)

	user, err := e.userProvider.GetUserByIdentifier(ctx, normalizeIdentifier(identifier))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.ErrorContext(ctx, "authcache: password reset lookup failed", "error", err)
		}
		e.emitAudit(ctx, AuditPasswordResetRequest, "", false, nil, nil)
		return nil
	}

	e.emitAudit(ctx, AuditPasswordResetRequest, user.UserID, true, nil, nil)
	if e.notifier != nil {
		if err := e.notifier.NotifyPasswordReset(ctx, user); err != nil {
			e.logger.ErrorContext(ctx, "authcache: password reset notification failed",
				"user_id", user.UserID,
				"error", err)
		}
	}
	return nil
}

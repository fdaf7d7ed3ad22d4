package authcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcache/password"
)

// Signup creates an account under the signup origin limit. A throttled
// request and a duplicate identifier both return Accepted=false and no error,
// so handlers answer with the same generic response as a successful signup
// and never reveal whether an account exists.
func (e *Engine) Signup(ctx context.Context, identifier, plaintext string) (SignupResult, error) {
	if !e.ready() {
		return SignupResult{}, ErrEngineNotReady
	}

	decision, err := e.CheckSignup(ctx)
	if err != nil {
		return SignupResult{}, err
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricSignupRateLimited)
		e.emitAudit(ctx, AuditSignupRateLimited, "", false, nil, map[string]string{
			"retry_after": decision.RetryAfter.String(),
		})
		return SignupResult{}, nil
	}

	ident := normalizeIdentifier(identifier)
	if ident == "" {
		return SignupResult{}, fmt.Errorf("%w: empty identifier", ErrPasswordPolicy)
	}
	hash, err := e.passwords.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return SignupResult{}, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return SignupResult{}, fmt.Errorf("authcache: hash password: %w", err)
	}

	user, err := e.userProvider.CreateUser(ctx, CreateUserInput{Identifier: ident, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metrics.Inc(MetricSignupDuplicate)
			e.emitAudit(ctx, AuditSignup, "", false, ErrAccountExists, nil)
			return SignupResult{}, nil
		}
		return SignupResult{}, err
	}

	if _, err := e.SetPasswordChangedAt(ctx, user.UserID, user.PasswordEpoch()); err != nil {
		return SignupResult{}, err
	}

	e.metrics.Inc(MetricSignupSuccess)
	e.emitAudit(ctx, AuditSignup, user.UserID, true, nil, nil)
	return SignupResult{Accepted: true, UserID: user.UserID}, nil
}

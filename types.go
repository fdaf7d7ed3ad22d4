package authcache

import (
	"context"
	"time"
)

// UserProvider is the durable user store the Engine consults. Implementations
// return ErrUserNotFound for unknown users and ErrAccountExists on duplicate
// creation.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	// UpdatePasswordHash stores hash and stamps PasswordChangedAt. The returned
	// record carries the new timestamp.
	UpdatePasswordHash(ctx context.Context, userID, hash string) (UserRecord, error)
}

// UserRecord is the durable view of an account.
type UserRecord struct {
	UserID            string
	Identifier        string
	PasswordHash      string
	CreatedAt         time.Time
	PasswordChangedAt time.Time // zero if never changed
	UpdatedAt         time.Time
}

// PasswordEpoch returns the instant tokens must postdate.
func (r UserRecord) PasswordEpoch() time.Time {
	if !r.PasswordChangedAt.IsZero() {
		return r.PasswordChangedAt
	}
	return r.CreatedAt
}

// CreateUserInput is passed to UserProvider.CreateUser.
type CreateUserInput struct {
	Identifier   string
	PasswordHash string
}

// AuthResult is the outcome of a successful Validate.
type AuthResult struct {
	UserID   string
	IssuedAt time.Time
	// Degraded is set when the token was accepted under FailOpen without a
	// password-epoch check.
	Degraded bool
}

// LoginResult is the outcome of a successful Login.
type LoginResult struct {
	UserID      string
	AccessToken string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// SignupResult is the outcome of Signup. A throttled signup reports
// Accepted=false but is otherwise indistinguishable from success to callers
// that only relay a generic response.
type SignupResult struct {
	Accepted bool
	UserID   string
}

// ThrottleDecision is the outcome of a Check* primitive.
type ThrottleDecision struct {
	Allowed           bool
	RemainingAttempts int
	RetryAfter        time.Duration
}

// ThrottleFailure is the outcome of a Record*Failure primitive.
type ThrottleFailure struct {
	Attempts          int
	RemainingAttempts int
	Delay             time.Duration
	Locked            bool
	RetryAfter        time.Duration
}

// ResetNotifier delivers password-reset instructions for an existing account.
// Errors are logged and never surfaced to the requester.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, user UserRecord) error
}

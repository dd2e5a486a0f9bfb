// Package usecase implements the credential recovery flows: password reset and email
// verification. Every state change and its notification intent are written in one unit of work.
package usecase

import (
	"context"

	"github.com/google/uuid"

	outboxDomain "github.com/allisson/identity/internal/outbox/domain"
	userDomain "github.com/allisson/identity/internal/user/domain"
)

// UserRepository is the slice of the user directory the flows need.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*userDomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userDomain.User, error)
	Update(ctx context.Context, user *userDomain.User) error
}

// OutboxWriter appends notification intents to the caller's transaction.
type OutboxWriter interface {
	Append(ctx context.Context, topic string, payload any) (*outboxDomain.Message, error)
}

// PasswordHasher hashes new passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// UseCase defines the recovery operations exposed to the HTTP layer and the CLI.
type UseCase interface {
	// RequestPasswordReset sends a reset link to email. Unknown emails and rate-limited
	// users get the same nil result as a successful request.
	RequestPasswordReset(ctx context.Context, email string) error

	// ValidatePasswordResetToken reports whether plainToken can still reset a password.
	ValidatePasswordResetToken(ctx context.Context, plainToken string) (bool, error)

	// ResetPassword consumes plainToken and replaces the user's password. Any token
	// problem is reported as ErrInvalidToken.
	ResetPassword(ctx context.Context, plainToken, newPassword string) error

	// SendEmailVerification sends a verification link to the user. Already verified and
	// unknown users are a no-op; ErrRateLimitExceeded is returned to the caller.
	SendEmailVerification(ctx context.Context, userID uuid.UUID) error

	// RequestEmailVerification resends a verification link by email address without
	// revealing whether the address is registered.
	RequestEmailVerification(ctx context.Context, email string) error

	// ValidateEmailVerificationToken reports whether plainToken can still verify an email.
	ValidateEmailVerificationToken(ctx context.Context, plainToken string) (bool, error)

	// ConfirmEmail consumes plainToken and marks the user's email as verified.
	ConfirmEmail(ctx context.Context, plainToken string) error
}

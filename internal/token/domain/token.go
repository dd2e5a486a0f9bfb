package domain

import (
	"time"

	"github.com/google/uuid"
)

// Token is a persisted single-use secret. Only the hash of the raw value is stored.
type Token struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Kind       Kind
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// IsExpired reports whether the token lifetime has elapsed at now.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsConsumed reports whether the token has already been used or invalidated.
func (t *Token) IsConsumed() bool {
	return t.ConsumedAt != nil
}

// IsValid reports whether the token can still be consumed at now.
func (t *Token) IsValid(now time.Time) bool {
	return !t.IsConsumed() && !t.IsExpired(now)
}

// ValidationStatus enumerates the outcomes of looking up a raw token.
type ValidationStatus int

const (
	StatusNotFound ValidationStatus = iota
	StatusExpired
	StatusAlreadyConsumed
	StatusValid
)

func (s ValidationStatus) String() string {
	switch s {
	case StatusNotFound:
		return "not_found"
	case StatusExpired:
		return "expired"
	case StatusAlreadyConsumed:
		return "already_consumed"
	case StatusValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Validation is the tagged result of validating a raw token. Token is set for every
// status except StatusNotFound.
type Validation struct {
	Status ValidationStatus
	Token  *Token
}

// NewValidation classifies a looked-up token at now. Expiry is checked before consumption
// so an expired token never reports anything but StatusExpired.
func NewValidation(token *Token, now time.Time) Validation {
	switch {
	case token == nil:
		return Validation{Status: StatusNotFound}
	case token.IsExpired(now):
		return Validation{Status: StatusExpired, Token: token}
	case token.IsConsumed():
		return Validation{Status: StatusAlreadyConsumed, Token: token}
	default:
		return Validation{Status: StatusValid, Token: token}
	}
}

// IsValid reports whether the validation succeeded.
func (v Validation) IsValid() bool {
	return v.Status == StatusValid
}

// Err returns the precise error for the status, or nil when valid. Callers facing
// untrusted clients must collapse these into ErrInvalidToken.
func (v Validation) Err() error {
	switch v.Status {
	case StatusValid:
		return nil
	case StatusExpired:
		return ErrTokenExpired
	case StatusAlreadyConsumed:
		return ErrTokenAlreadyConsumed
	default:
		return ErrTokenNotFound
	}
}

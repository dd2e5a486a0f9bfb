// Package domain defines the single-use secure token model shared by password reset
// and email verification.
package domain

import "time"

// Kind identifies the purpose of a secure token. Each kind lives in its own table and has
// its own lifetime and pending-token cap.
type Kind string

const (
	// KindPasswordReset tokens authorize a single password replacement.
	KindPasswordReset Kind = "password_reset"

	// KindEmailVerification tokens prove ownership of the account email address.
	KindEmailVerification Kind = "email_verification"
)

const (
	// DefaultPasswordResetTTL is the lifetime of a password reset token.
	DefaultPasswordResetTTL = time.Hour

	// DefaultEmailVerificationTTL is the lifetime of an email verification token.
	DefaultEmailVerificationTTL = 24 * time.Hour

	// DefaultMaxPending is the number of unconsumed, unexpired tokens a user may hold per kind.
	DefaultMaxPending = 3
)

// Valid reports whether k is a known token kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPasswordReset, KindEmailVerification:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}

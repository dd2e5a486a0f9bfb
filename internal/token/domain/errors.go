package domain

import (
	"github.com/allisson/identity/internal/errors"
)

// Secure token errors.
var (
	// ErrTokenNotFound indicates no token matches the hash of the presented value.
	ErrTokenNotFound = errors.Wrap(errors.ErrNotFound, "token not found")

	// ErrTokenOwnerNotFound indicates the user a token is issued for does not exist.
	ErrTokenOwnerNotFound = errors.Wrap(errors.ErrNotFound, "token owner not found")

	// ErrTokenExpired indicates the token lifetime has elapsed.
	ErrTokenExpired = errors.Wrap(errors.ErrInvalidInput, "token expired")

	// ErrTokenAlreadyConsumed indicates the token was used or invalidated before.
	ErrTokenAlreadyConsumed = errors.Wrap(errors.ErrConflict, "token already consumed")

	// ErrRateLimitExceeded indicates the user already holds the maximum number of pending tokens.
	ErrRateLimitExceeded = errors.Wrap(errors.ErrTooManyRequests, "too many pending tokens")

	// ErrInvalidToken is the only token error exposed to untrusted callers.
	ErrInvalidToken = errors.Wrap(errors.ErrInvalidInput, "invalid or expired token")

	// ErrInvalidKind indicates an unknown token kind.
	ErrInvalidKind = errors.Wrap(errors.ErrInvalidInput, "invalid token kind")
)

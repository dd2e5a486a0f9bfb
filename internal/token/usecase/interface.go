// Package usecase implements the secure token authority: issuing, validating, consuming
// and rate limiting single-use tokens.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	tokenDomain "github.com/allisson/identity/internal/token/domain"
)

// TokenRepository defines persistence operations for secure tokens.
// Implementations must support transaction-aware operations via context propagation.
type TokenRepository interface {
	// Create stores a new token in the table for token.Kind.
	Create(ctx context.Context, token *tokenDomain.Token) error

	// GetByTokenHash retrieves a token by hash. Returns ErrTokenNotFound if not found.
	GetByTokenHash(ctx context.Context, kind tokenDomain.Kind, tokenHash string) (*tokenDomain.Token, error)

	// LockUser takes a row lock on the owning user that is held until the surrounding
	// transaction ends, so concurrent issuers for the same user count pending tokens one
	// at a time. Returns ErrTokenOwnerNotFound if the user does not exist.
	LockUser(ctx context.Context, userID uuid.UUID) error

	// CountPending counts unconsumed tokens of kind for userID that are still valid at now.
	CountPending(ctx context.Context, kind tokenDomain.Kind, userID uuid.UUID, now time.Time) (int, error)

	// Consume marks the token consumed only if it is still unconsumed and unexpired at
	// consumedAt. Returns ErrTokenAlreadyConsumed when the conditional update matches no row.
	Consume(ctx context.Context, kind tokenDomain.Kind, tokenID uuid.UUID, consumedAt time.Time) error

	// InvalidatePending marks every valid token of kind for userID as consumed and returns
	// how many rows changed.
	InvalidatePending(
		ctx context.Context,
		kind tokenDomain.Kind,
		userID uuid.UUID,
		consumedAt time.Time,
	) (int64, error)

	// DeleteExpired removes tokens that expired or were consumed before olderThan. With
	// dryRun it only counts them.
	DeleteExpired(ctx context.Context, kind tokenDomain.Kind, olderThan time.Time, dryRun bool) (int64, error)
}

// Authority is the only write surface for secure tokens.
type Authority interface {
	// Issue creates and persists a token for userID. The plain token is returned exactly
	// once. Returns ErrRateLimitExceeded when the user already holds MaxPending valid tokens.
	// Must run inside a unit of work so the owner lock covers the count and the insert.
	Issue(ctx context.Context, userID uuid.UUID, kind tokenDomain.Kind) (string, *tokenDomain.Token, error)

	// CheckRateLimit reports whether userID may be issued another token of kind.
	CheckRateLimit(ctx context.Context, userID uuid.UUID, kind tokenDomain.Kind) (bool, error)

	// Validate hashes plainToken and classifies the matching record. Lookup errors other
	// than not-found are returned as err.
	Validate(ctx context.Context, plainToken string, kind tokenDomain.Kind) (tokenDomain.Validation, error)

	// Consume atomically marks token as consumed. Exactly one concurrent caller succeeds;
	// the rest get ErrTokenAlreadyConsumed.
	Consume(ctx context.Context, token *tokenDomain.Token) (*tokenDomain.Token, error)

	// InvalidateAllPending consumes every still-valid token of kind for userID.
	InvalidateAllPending(ctx context.Context, userID uuid.UUID, kind tokenDomain.Kind) (int64, error)

	// CleanupExpired deletes tokens of every kind that expired or were consumed more than
	// days ago and returns the total count.
	CleanupExpired(ctx context.Context, days int, dryRun bool) (int64, error)
}

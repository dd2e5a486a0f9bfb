package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/allisson/identity/internal/errors"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
	tokenService "github.com/allisson/identity/internal/token/service"
)

// Policy holds the kind-specific lifetime and pending-token cap.
type Policy struct {
	TTL        time.Duration
	MaxPending int
}

// Config maps every supported token kind to its policy.
type Config struct {
	Policies map[tokenDomain.Kind]Policy
}

// DefaultConfig returns one hour password reset tokens and 24 hour email verification
// tokens, both capped at three pending tokens per user.
func DefaultConfig() Config {
	return Config{
		Policies: map[tokenDomain.Kind]Policy{
			tokenDomain.KindPasswordReset: {
				TTL:        tokenDomain.DefaultPasswordResetTTL,
				MaxPending: tokenDomain.DefaultMaxPending,
			},
			tokenDomain.KindEmailVerification: {
				TTL:        tokenDomain.DefaultEmailVerificationTTL,
				MaxPending: tokenDomain.DefaultMaxPending,
			},
		},
	}
}

// authority implements Authority.
type authority struct {
	config    Config
	tokenRepo TokenRepository
	generator tokenService.Generator
	clock     clockwork.Clock
}

// NewAuthority creates a new Authority with the provided dependencies.
func NewAuthority(
	config Config,
	tokenRepo TokenRepository,
	generator tokenService.Generator,
	clock clockwork.Clock,
) Authority {
	return &authority{
		config:    config,
		tokenRepo: tokenRepo,
		generator: generator,
		clock:     clock,
	}
}

func (a *authority) policy(kind tokenDomain.Kind) (Policy, error) {
	policy, ok := a.config.Policies[kind]
	if !ok || !kind.Valid() {
		return Policy{}, tokenDomain.ErrInvalidKind
	}
	return policy, nil
}

func (a *authority) now() time.Time {
	return a.clock.Now().UTC()
}

// Issue locks the owning user, checks the pending-token cap, generates a token and
// persists only its hash. The lock lives as long as the caller's transaction.
func (a *authority) Issue(
	ctx context.Context,
	userID uuid.UUID,
	kind tokenDomain.Kind,
) (string, *tokenDomain.Token, error) {
	policy, err := a.policy(kind)
	if err != nil {
		return "", nil, err
	}

	if err := a.tokenRepo.LockUser(ctx, userID); err != nil {
		return "", nil, err
	}

	allowed, err := a.CheckRateLimit(ctx, userID, kind)
	if err != nil {
		return "", nil, err
	}
	if !allowed {
		return "", nil, tokenDomain.ErrRateLimitExceeded
	}

	plainToken, tokenHash, err := a.generator.Generate()
	if err != nil {
		return "", nil, err
	}

	now := a.now()
	token := &tokenDomain.Token{
		ID:        uuid.Must(uuid.NewV7()),
		UserID:    userID,
		Kind:      kind,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(policy.TTL),
		CreatedAt: now,
	}

	if err := a.tokenRepo.Create(ctx, token); err != nil {
		return "", nil, err
	}

	return plainToken, token, nil
}

// CheckRateLimit counts the user's pending tokens against the kind's cap.
func (a *authority) CheckRateLimit(ctx context.Context, userID uuid.UUID, kind tokenDomain.Kind) (bool, error) {
	policy, err := a.policy(kind)
	if err != nil {
		return false, err
	}

	pending, err := a.tokenRepo.CountPending(ctx, kind, userID, a.now())
	if err != nil {
		return false, err
	}

	return pending < policy.MaxPending, nil
}

// Validate looks the token up by hash; plain values are never compared.
func (a *authority) Validate(
	ctx context.Context,
	plainToken string,
	kind tokenDomain.Kind,
) (tokenDomain.Validation, error) {
	if _, err := a.policy(kind); err != nil {
		return tokenDomain.Validation{}, err
	}

	if plainToken == "" {
		return tokenDomain.Validation{Status: tokenDomain.StatusNotFound}, nil
	}

	token, err := a.tokenRepo.GetByTokenHash(ctx, kind, a.generator.Hash(plainToken))
	if err != nil {
		if errors.Is(err, tokenDomain.ErrTokenNotFound) {
			return tokenDomain.Validation{Status: tokenDomain.StatusNotFound}, nil
		}
		return tokenDomain.Validation{}, err
	}

	return tokenDomain.NewValidation(token, a.now()), nil
}

// Consume performs the compare-and-set on the consumed timestamp.
func (a *authority) Consume(ctx context.Context, token *tokenDomain.Token) (*tokenDomain.Token, error) {
	if _, err := a.policy(token.Kind); err != nil {
		return nil, err
	}

	now := a.now()
	if token.IsExpired(now) {
		return nil, tokenDomain.ErrTokenExpired
	}
	if token.IsConsumed() {
		return nil, tokenDomain.ErrTokenAlreadyConsumed
	}

	if err := a.tokenRepo.Consume(ctx, token.Kind, token.ID, now); err != nil {
		return nil, err
	}

	consumed := *token
	consumed.ConsumedAt = &now
	return &consumed, nil
}

// InvalidateAllPending forces every valid token of kind for the user to consumed.
func (a *authority) InvalidateAllPending(ctx context.Context, userID uuid.UUID, kind tokenDomain.Kind) (int64, error) {
	if _, err := a.policy(kind); err != nil {
		return 0, err
	}
	return a.tokenRepo.InvalidatePending(ctx, kind, userID, a.now())
}

// CleanupExpired removes stale tokens of every configured kind.
func (a *authority) CleanupExpired(ctx context.Context, days int, dryRun bool) (int64, error) {
	if days < 0 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "days must be a positive number")
	}

	olderThan := a.now().AddDate(0, 0, -days)

	var total int64
	for _, kind := range []tokenDomain.Kind{tokenDomain.KindPasswordReset, tokenDomain.KindEmailVerification} {
		if _, ok := a.config.Policies[kind]; !ok {
			continue
		}
		count, err := a.tokenRepo.DeleteExpired(ctx, kind, olderThan, dryRun)
		if err != nil {
			return total, fmt.Errorf("failed to cleanup %s tokens: %w", kind, err)
		}
		total += count
	}

	return total, nil
}

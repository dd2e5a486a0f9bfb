package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/identity/internal/metrics"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
)

// authorityWithMetrics decorates Authority with metrics instrumentation.
type authorityWithMetrics struct {
	next    Authority
	metrics metrics.BusinessMetrics
}

// NewAuthorityWithMetrics wraps an Authority with metrics recording.
func NewAuthorityWithMetrics(authority Authority, m metrics.BusinessMetrics) Authority {
	return &authorityWithMetrics{
		next:    authority,
		metrics: m,
	}
}

func (a *authorityWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}

	a.metrics.RecordOperation(ctx, "token", operation, status)
	a.metrics.RecordDuration(ctx, "token", operation, time.Since(start), status)
}

// Issue records metrics for token issuance, counting issued and rate-limited outcomes per kind.
func (a *authorityWithMetrics) Issue(
	ctx context.Context,
	userID uuid.UUID,
	kind tokenDomain.Kind,
) (string, *tokenDomain.Token, error) {
	start := time.Now()
	plainToken, token, err := a.next.Issue(ctx, userID, kind)
	a.record(ctx, kind.String()+"_issue", start, err)

	switch {
	case err == nil:
		a.metrics.RecordTokenEvent(ctx, kind.String(), metrics.TokenIssued)
	case errors.Is(err, tokenDomain.ErrRateLimitExceeded):
		a.metrics.RecordTokenEvent(ctx, kind.String(), metrics.TokenRateLimited)
	}
	return plainToken, token, err
}

// CheckRateLimit delegates without recording; Issue already covers it.
func (a *authorityWithMetrics) CheckRateLimit(
	ctx context.Context,
	userID uuid.UUID,
	kind tokenDomain.Kind,
) (bool, error) {
	return a.next.CheckRateLimit(ctx, userID, kind)
}

// Validate records metrics for token validation. Non-valid outcomes are counted as their status.
func (a *authorityWithMetrics) Validate(
	ctx context.Context,
	plainToken string,
	kind tokenDomain.Kind,
) (tokenDomain.Validation, error) {
	start := time.Now()
	validation, err := a.next.Validate(ctx, plainToken, kind)

	status := validation.Status.String()
	if err != nil {
		status = metrics.StatusError
	}

	operation := kind.String() + "_validate"
	a.metrics.RecordOperation(ctx, "token", operation, status)
	a.metrics.RecordDuration(ctx, "token", operation, time.Since(start), status)

	return validation, err
}

// Consume records metrics for token consumption.
func (a *authorityWithMetrics) Consume(ctx context.Context, token *tokenDomain.Token) (*tokenDomain.Token, error) {
	start := time.Now()
	consumed, err := a.next.Consume(ctx, token)
	a.record(ctx, token.Kind.String()+"_consume", start, err)

	switch {
	case err == nil:
		a.metrics.RecordTokenEvent(ctx, token.Kind.String(), metrics.TokenConsumed)
	case errors.Is(err, tokenDomain.ErrTokenAlreadyConsumed):
		a.metrics.RecordTokenEvent(ctx, token.Kind.String(), metrics.TokenAlreadyConsumed)
	}
	return consumed, err
}

// InvalidateAllPending records metrics for bulk invalidation.
func (a *authorityWithMetrics) InvalidateAllPending(
	ctx context.Context,
	userID uuid.UUID,
	kind tokenDomain.Kind,
) (int64, error) {
	start := time.Now()
	count, err := a.next.InvalidateAllPending(ctx, userID, kind)
	a.record(ctx, kind.String()+"_invalidate", start, err)
	return count, err
}

// CleanupExpired records metrics for expired token cleanup.
func (a *authorityWithMetrics) CleanupExpired(ctx context.Context, days int, dryRun bool) (int64, error) {
	start := time.Now()
	count, err := a.next.CleanupExpired(ctx, days, dryRun)
	a.record(ctx, "cleanup_expired", start, err)
	return count, err
}

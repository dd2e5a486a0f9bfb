// Package mocks provides testify mock implementations of the token use case interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	tokenDomain "github.com/allisson/identity/internal/token/domain"
)

// MockTokenRepository is a mock implementation of usecase.TokenRepository.
type MockTokenRepository struct {
	mock.Mock
}

// Create mocks the Create method.
func (m *MockTokenRepository) Create(ctx context.Context, token *tokenDomain.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// GetByTokenHash mocks the GetByTokenHash method.
func (m *MockTokenRepository) GetByTokenHash(
	ctx context.Context,
	kind tokenDomain.Kind,
	tokenHash string,
) (*tokenDomain.Token, error) {
	args := m.Called(ctx, kind, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tokenDomain.Token), args.Error(1)
}

// LockUser mocks the LockUser method.
func (m *MockTokenRepository) LockUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// CountPending mocks the CountPending method.
func (m *MockTokenRepository) CountPending(
	ctx context.Context,
	kind tokenDomain.Kind,
	userID uuid.UUID,
	now time.Time,
) (int, error) {
	args := m.Called(ctx, kind, userID, now)
	return args.Int(0), args.Error(1)
}

// Consume mocks the Consume method.
func (m *MockTokenRepository) Consume(
	ctx context.Context,
	kind tokenDomain.Kind,
	tokenID uuid.UUID,
	consumedAt time.Time,
) error {
	args := m.Called(ctx, kind, tokenID, consumedAt)
	return args.Error(0)
}

// InvalidatePending mocks the InvalidatePending method.
func (m *MockTokenRepository) InvalidatePending(
	ctx context.Context,
	kind tokenDomain.Kind,
	userID uuid.UUID,
	consumedAt time.Time,
) (int64, error) {
	args := m.Called(ctx, kind, userID, consumedAt)
	return args.Get(0).(int64), args.Error(1)
}

// DeleteExpired mocks the DeleteExpired method.
func (m *MockTokenRepository) DeleteExpired(
	ctx context.Context,
	kind tokenDomain.Kind,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	args := m.Called(ctx, kind, olderThan, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// MockAuthority is a mock implementation of usecase.Authority.
type MockAuthority struct {
	mock.Mock
}

// Issue mocks the Issue method.
func (m *MockAuthority) Issue(
	ctx context.Context,
	userID uuid.UUID,
	kind tokenDomain.Kind,
) (string, *tokenDomain.Token, error) {
	args := m.Called(ctx, userID, kind)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*tokenDomain.Token), args.Error(2)
}

// CheckRateLimit mocks the CheckRateLimit method.
func (m *MockAuthority) CheckRateLimit(ctx context.Context, userID uuid.UUID, kind tokenDomain.Kind) (bool, error) {
	args := m.Called(ctx, userID, kind)
	return args.Bool(0), args.Error(1)
}

// Validate mocks the Validate method.
func (m *MockAuthority) Validate(
	ctx context.Context,
	plainToken string,
	kind tokenDomain.Kind,
) (tokenDomain.Validation, error) {
	args := m.Called(ctx, plainToken, kind)
	return args.Get(0).(tokenDomain.Validation), args.Error(1)
}

// Consume mocks the Consume method.
func (m *MockAuthority) Consume(ctx context.Context, token *tokenDomain.Token) (*tokenDomain.Token, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tokenDomain.Token), args.Error(1)
}

// InvalidateAllPending mocks the InvalidateAllPending method.
func (m *MockAuthority) InvalidateAllPending(
	ctx context.Context,
	userID uuid.UUID,
	kind tokenDomain.Kind,
) (int64, error) {
	args := m.Called(ctx, userID, kind)
	return args.Get(0).(int64), args.Error(1)
}

// CleanupExpired mocks the CleanupExpired method.
func (m *MockAuthority) CleanupExpired(ctx context.Context, days int, dryRun bool) (int64, error) {
	args := m.Called(ctx, days, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// Package mocks provides testify mocks for the recovery use case.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUseCase is a mock implementation of usecase.UseCase.
type MockUseCase struct {
	mock.Mock
}

func (m *MockUseCase) RequestPasswordReset(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockUseCase) ValidatePasswordResetToken(ctx context.Context, plainToken string) (bool, error) {
	args := m.Called(ctx, plainToken)
	return args.Bool(0), args.Error(1)
}

func (m *MockUseCase) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	args := m.Called(ctx, plainToken, newPassword)
	return args.Error(0)
}

func (m *MockUseCase) SendEmailVerification(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUseCase) RequestEmailVerification(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockUseCase) ValidateEmailVerificationToken(ctx context.Context, plainToken string) (bool, error) {
	args := m.Called(ctx, plainToken)
	return args.Bool(0), args.Error(1)
}

func (m *MockUseCase) ConfirmEmail(ctx context.Context, plainToken string) error {
	args := m.Called(ctx, plainToken)
	return args.Error(0)
}

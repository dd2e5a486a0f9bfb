package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	recoveryMocks "github.com/allisson/identity/internal/recovery/usecase/mocks"
)

func TestRunRequestPasswordReset(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("success", func(t *testing.T) {
		mockUseCase := &recoveryMocks.MockUseCase{}
		mockUseCase.On("RequestPasswordReset", ctx, "john@example.com").Return(nil)

		var out bytes.Buffer
		err := RunRequestPasswordReset(ctx, mockUseCase, logger, &out, "john@example.com")

		require.NoError(t, err)
		require.Contains(t, out.String(), "password reset email has been queued")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("missing-email", func(t *testing.T) {
		mockUseCase := &recoveryMocks.MockUseCase{}

		err := RunRequestPasswordReset(ctx, mockUseCase, logger, &bytes.Buffer{}, "")

		require.Error(t, err)
		mockUseCase.AssertNotCalled(t, "RequestPasswordReset")
	})

	t.Run("use-case-error", func(t *testing.T) {
		mockUseCase := &recoveryMocks.MockUseCase{}
		mockUseCase.On("RequestPasswordReset", ctx, "john@example.com").Return(errors.New("db down"))

		err := RunRequestPasswordReset(ctx, mockUseCase, logger, &bytes.Buffer{}, "john@example.com")

		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to request password reset")
	})
}

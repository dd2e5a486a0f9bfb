package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// PasswordResetRequester starts the password reset flow for an email address.
type PasswordResetRequester interface {
	RequestPasswordReset(ctx context.Context, email string) error
}

// RunRequestPasswordReset queues a password reset email for an operator. Like the public
// endpoint it reports success whether or not the address belongs to a user.
func RunRequestPasswordReset(
	ctx context.Context,
	requester PasswordResetRequester,
	logger *slog.Logger,
	out io.Writer,
	email string,
) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}

	if err := requester.RequestPasswordReset(ctx, email); err != nil {
		return fmt.Errorf("failed to request password reset: %w", err)
	}

	logger.Info("password reset requested")
	_, err := fmt.Fprintln(out, "If the address is registered, a password reset email has been queued")
	return err
}

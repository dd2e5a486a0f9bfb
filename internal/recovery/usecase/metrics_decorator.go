package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/identity/internal/metrics"
)

// recoveryUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type recoveryUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewRecoveryUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewRecoveryUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &recoveryUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (r *recoveryUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}

	r.metrics.RecordOperation(ctx, "recovery", operation, status)
	r.metrics.RecordDuration(ctx, "recovery", operation, time.Since(start), status)
}

// RequestPasswordReset records metrics for password reset requests.
func (r *recoveryUseCaseWithMetrics) RequestPasswordReset(ctx context.Context, email string) error {
	start := time.Now()
	err := r.next.RequestPasswordReset(ctx, email)
	r.record(ctx, "password_reset_request", start, err)
	return err
}

// ValidatePasswordResetToken records metrics for reset token checks.
func (r *recoveryUseCaseWithMetrics) ValidatePasswordResetToken(ctx context.Context, plainToken string) (bool, error) {
	start := time.Now()
	valid, err := r.next.ValidatePasswordResetToken(ctx, plainToken)
	r.record(ctx, "password_reset_validate", start, err)
	return valid, err
}

// ResetPassword records metrics for password resets.
func (r *recoveryUseCaseWithMetrics) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	start := time.Now()
	err := r.next.ResetPassword(ctx, plainToken, newPassword)
	r.record(ctx, "password_reset", start, err)
	return err
}

// SendEmailVerification records metrics for verification emails sent by user id.
func (r *recoveryUseCaseWithMetrics) SendEmailVerification(ctx context.Context, userID uuid.UUID) error {
	start := time.Now()
	err := r.next.SendEmailVerification(ctx, userID)
	r.record(ctx, "email_verification_send", start, err)
	return err
}

// RequestEmailVerification records metrics for verification resend requests.
func (r *recoveryUseCaseWithMetrics) RequestEmailVerification(ctx context.Context, email string) error {
	start := time.Now()
	err := r.next.RequestEmailVerification(ctx, email)
	r.record(ctx, "email_verification_request", start, err)
	return err
}

// ValidateEmailVerificationToken records metrics for verification token checks.
func (r *recoveryUseCaseWithMetrics) ValidateEmailVerificationToken(
	ctx context.Context,
	plainToken string,
) (bool, error) {
	start := time.Now()
	valid, err := r.next.ValidateEmailVerificationToken(ctx, plainToken)
	r.record(ctx, "email_verification_validate", start, err)
	return valid, err
}

// ConfirmEmail records metrics for email confirmations.
func (r *recoveryUseCaseWithMetrics) ConfirmEmail(ctx context.Context, plainToken string) error {
	start := time.Now()
	err := r.next.ConfirmEmail(ctx, plainToken)
	r.record(ctx, "email_verification_confirm", start, err)
	return err
}

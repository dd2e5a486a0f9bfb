package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/allisson/identity/internal/database"
	apperrors "github.com/allisson/identity/internal/errors"
	outboxDomain "github.com/allisson/identity/internal/outbox/domain"
	"github.com/allisson/identity/internal/password"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
	tokenUseCase "github.com/allisson/identity/internal/token/usecase"
	userDomain "github.com/allisson/identity/internal/user/domain"
)

const (
	// DefaultPasswordResetPath is the frontend route that accepts reset tokens.
	DefaultPasswordResetPath = "/reset-password"
	// DefaultEmailVerificationPath is the frontend route that accepts verification tokens.
	DefaultEmailVerificationPath = "/verify-email"
)

// Config controls how links in recovery emails are built.
type Config struct {
	PublicBaseURL         string
	PasswordResetPath     string
	EmailVerificationPath string
}

// recoveryUseCase implements UseCase.
type recoveryUseCase struct {
	config    Config
	txManager database.TxManager
	userRepo  UserRepository
	authority tokenUseCase.Authority
	outbox    OutboxWriter
	hasher    PasswordHasher
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewRecoveryUseCase creates the recovery flows.
func NewRecoveryUseCase(
	config Config,
	txManager database.TxManager,
	userRepo UserRepository,
	authority tokenUseCase.Authority,
	outbox OutboxWriter,
	hasher PasswordHasher,
	clock clockwork.Clock,
	logger *slog.Logger,
) UseCase {
	if config.PasswordResetPath == "" {
		config.PasswordResetPath = DefaultPasswordResetPath
	}
	if config.EmailVerificationPath == "" {
		config.EmailVerificationPath = DefaultEmailVerificationPath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &recoveryUseCase{
		config:    config,
		txManager: txManager,
		userRepo:  userRepo,
		authority: authority,
		outbox:    outbox,
		hasher:    hasher,
		clock:     clock,
		logger:    logger,
	}
}

// RequestPasswordReset issues a reset token and queues the reset email.
func (uc *recoveryUseCase) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := uc.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, userDomain.ErrUserNotFound) {
			uc.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}

	allowed, err := uc.authority.CheckRateLimit(ctx, user.ID, tokenDomain.KindPasswordReset)
	if err != nil {
		return err
	}
	if !allowed {
		uc.logger.Warn("password reset rate limit reached", slog.String("user_id", user.ID.String()))
		return nil
	}

	err = uc.issueAndNotify(ctx, user, tokenDomain.KindPasswordReset)
	if errors.Is(err, tokenDomain.ErrRateLimitExceeded) {
		uc.logger.Warn("password reset rate limit reached", slog.String("user_id", user.ID.String()))
		return nil
	}
	return err
}

// ValidatePasswordResetToken checks a reset token without consuming it.
func (uc *recoveryUseCase) ValidatePasswordResetToken(ctx context.Context, plainToken string) (bool, error) {
	return uc.isValid(ctx, plainToken, tokenDomain.KindPasswordReset)
}

// ResetPassword replaces the password of the token owner and revokes every other reset token.
func (uc *recoveryUseCase) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	token, err := uc.validToken(ctx, plainToken, tokenDomain.KindPasswordReset)
	if err != nil {
		return err
	}

	if err := password.Validate(newPassword); err != nil {
		return err
	}

	passwordHash, err := uc.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if _, err := uc.authority.Consume(ctx, token); err != nil {
			return collapseTokenError(err)
		}

		user, err := uc.userRepo.GetByID(ctx, token.UserID)
		if err != nil {
			return collapseUserError(err)
		}

		now := uc.clock.Now().UTC()
		user.PasswordHash = passwordHash
		user.UpdatedAt = now
		if err := uc.userRepo.Update(ctx, user); err != nil {
			return err
		}

		if _, err := uc.authority.InvalidateAllPending(ctx, user.ID, tokenDomain.KindPasswordReset); err != nil {
			return err
		}

		_, err = uc.outbox.Append(ctx, outboxDomain.TopicUserPasswordReset, userEvent(user, now))
		return err
	})
}

// SendEmailVerification issues a verification token for userID and queues the email.
func (uc *recoveryUseCase) SendEmailVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userDomain.ErrUserNotFound) {
			return nil
		}
		return err
	}
	return uc.sendEmailVerification(ctx, user)
}

// RequestEmailVerification resends the verification email to email if it is registered.
func (uc *recoveryUseCase) RequestEmailVerification(ctx context.Context, email string) error {
	user, err := uc.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, userDomain.ErrUserNotFound) {
			uc.logger.Debug("email verification requested for unknown email")
			return nil
		}
		return err
	}

	err = uc.sendEmailVerification(ctx, user)
	if errors.Is(err, tokenDomain.ErrRateLimitExceeded) {
		uc.logger.Warn("email verification rate limit reached", slog.String("user_id", user.ID.String()))
		return nil
	}
	return err
}

// ValidateEmailVerificationToken checks a verification token without consuming it.
func (uc *recoveryUseCase) ValidateEmailVerificationToken(ctx context.Context, plainToken string) (bool, error) {
	return uc.isValid(ctx, plainToken, tokenDomain.KindEmailVerification)
}

// ConfirmEmail marks the token owner's email as verified.
func (uc *recoveryUseCase) ConfirmEmail(ctx context.Context, plainToken string) error {
	token, err := uc.validToken(ctx, plainToken, tokenDomain.KindEmailVerification)
	if err != nil {
		return err
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if _, err := uc.authority.Consume(ctx, token); err != nil {
			return collapseTokenError(err)
		}

		user, err := uc.userRepo.GetByID(ctx, token.UserID)
		if err != nil {
			return collapseUserError(err)
		}

		now := uc.clock.Now().UTC()
		if !user.IsEmailVerified() {
			user.EmailVerifiedAt = &now
		}
		user.UpdatedAt = now
		if err := uc.userRepo.Update(ctx, user); err != nil {
			return err
		}

		if _, err := uc.authority.InvalidateAllPending(ctx, user.ID, tokenDomain.KindEmailVerification); err != nil {
			return err
		}

		_, err = uc.outbox.Append(ctx, outboxDomain.TopicUserEmailVerified, userEvent(user, now))
		return err
	})
}

func (uc *recoveryUseCase) sendEmailVerification(ctx context.Context, user *userDomain.User) error {
	if user.IsEmailVerified() {
		return nil
	}
	return uc.issueAndNotify(ctx, user, tokenDomain.KindEmailVerification)
}

// issueAndNotify issues a token and appends the matching email in one unit of work.
func (uc *recoveryUseCase) issueAndNotify(ctx context.Context, user *userDomain.User, kind tokenDomain.Kind) error {
	topic, templateType, path := outboxDomain.TopicPasswordResetEmail, outboxDomain.TemplatePasswordReset, uc.config.PasswordResetPath
	if kind == tokenDomain.KindEmailVerification {
		topic, templateType, path = outboxDomain.TopicEmailVerificationEmail, outboxDomain.TemplateEmailVerification, uc.config.EmailVerificationPath
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		plainToken, token, err := uc.authority.Issue(ctx, user.ID, kind)
		if err != nil {
			return err
		}

		link, err := uc.link(path, plainToken)
		if err != nil {
			return err
		}

		_, err = uc.outbox.Append(ctx, topic, outboxDomain.EmailPayload{
			TemplateType: templateType,
			To:           user.Email,
			Name:         user.Name,
			Link:         link,
			ExpiresAt:    token.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return err
	})
}

// validToken returns the token record only when it is currently valid.
func (uc *recoveryUseCase) validToken(
	ctx context.Context,
	plainToken string,
	kind tokenDomain.Kind,
) (*tokenDomain.Token, error) {
	validation, err := uc.authority.Validate(ctx, plainToken, kind)
	if err != nil {
		return nil, err
	}
	if validation.Status != tokenDomain.StatusValid {
		uc.logger.Debug("token rejected",
			slog.String("kind", kind.String()),
			slog.String("status", validation.Status.String()),
		)
		return nil, tokenDomain.ErrInvalidToken
	}
	return validation.Token, nil
}

func (uc *recoveryUseCase) isValid(ctx context.Context, plainToken string, kind tokenDomain.Kind) (bool, error) {
	validation, err := uc.authority.Validate(ctx, plainToken, kind)
	if err != nil {
		return false, err
	}
	return validation.Status == tokenDomain.StatusValid, nil
}

// link builds {PublicBaseURL}{path}?token={plainToken}.
func (uc *recoveryUseCase) link(path, plainToken string) (string, error) {
	base, err := url.JoinPath(uc.config.PublicBaseURL, path)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to build link")
	}
	return base + "?" + url.Values{"token": {plainToken}}.Encode(), nil
}

// collapseTokenError hides which token check failed.
func collapseTokenError(err error) error {
	switch {
	case errors.Is(err, tokenDomain.ErrTokenNotFound),
		errors.Is(err, tokenDomain.ErrTokenExpired),
		errors.Is(err, tokenDomain.ErrTokenAlreadyConsumed):
		return tokenDomain.ErrInvalidToken
	default:
		return err
	}
}

// collapseUserError treats a token whose owner vanished as invalid.
func collapseUserError(err error) error {
	if errors.Is(err, userDomain.ErrUserNotFound) {
		return tokenDomain.ErrInvalidToken
	}
	return err
}

func userEvent(user *userDomain.User, now time.Time) outboxDomain.UserEventPayload {
	return outboxDomain.UserEventPayload{
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: now.Format(time.RFC3339),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

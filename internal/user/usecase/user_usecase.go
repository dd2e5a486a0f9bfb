// Package usecase implements the user business logic and orchestrates user domain operations.
package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	"github.com/jonboulle/clockwork"

	"github.com/allisson/identity/internal/database"
	outboxDomain "github.com/allisson/identity/internal/outbox/domain"
	"github.com/allisson/identity/internal/user/domain"
	appValidation "github.com/allisson/identity/internal/validation"
)

// RegisterUserInput contains the input data for user registration
type RegisterUserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UseCase defines the interface for user business logic operations
type UseCase interface {
	RegisterUser(ctx context.Context, input RegisterUserInput) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// UserRepository interface defines user repository operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// OutboxWriter appends notification intents to the caller's transaction.
type OutboxWriter interface {
	Append(ctx context.Context, topic string, payload any) (*outboxDomain.Message, error)
}

// PasswordHasher hashes user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// EmailVerificationSender queues the first verification email for a new user.
type EmailVerificationSender interface {
	SendEmailVerification(ctx context.Context, userID uuid.UUID) error
}

// UserUseCase handles user-related business logic
type UserUseCase struct {
	txManager    database.TxManager
	userRepo     UserRepository
	outbox       OutboxWriter
	hasher       PasswordHasher
	verification EmailVerificationSender
	clock        clockwork.Clock
	logger       *slog.Logger
}

// NewUserUseCase creates a new UserUseCase
func NewUserUseCase(
	txManager database.TxManager,
	userRepo UserRepository,
	outbox OutboxWriter,
	hasher PasswordHasher,
	verification EmailVerificationSender,
	clock clockwork.Clock,
	logger *slog.Logger,
) UseCase {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &UserUseCase{
		txManager:    txManager,
		userRepo:     userRepo,
		outbox:       outbox,
		hasher:       hasher,
		verification: verification,
		clock:        clock,
		logger:       logger,
	}
}

// validateRegisterUserInput validates the registration input using jellydator/validation
func (uc *UserUseCase) validateRegisterUserInput(input RegisterUserInput) error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.Name,
			validation.Required.Error("name is required"),
			appValidation.NotBlank,
			validation.Length(1, 255).Error("name must be between 1 and 255 characters"),
		),
		validation.Field(&input.Email,
			validation.Required.Error("email is required"),
			appValidation.NotBlank,
			appValidation.Email,
			validation.Length(5, 255).Error("email must be between 5 and 255 characters"),
		),
		validation.Field(&input.Password,
			validation.Required.Error("password is required"),
			validation.Length(8, 128).Error("password must be between 8 and 128 characters"),
			appValidation.DefaultPasswordStrength,
		),
	)
	return appValidation.WrapValidationError(err)
}

// RegisterUser creates the user, records identity.user.registered and queues the first
// verification email in one unit of work.
func (uc *UserUseCase) RegisterUser(ctx context.Context, input RegisterUserInput) (*domain.User, error) {
	if err := uc.validateRegisterUserInput(input); err != nil {
		return nil, err
	}

	passwordHash, err := uc.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now().UTC()
	user := &domain.User{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.TrimSpace(strings.ToLower(input.Email)),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.userRepo.Create(ctx, user); err != nil {
			return err
		}

		_, err := uc.outbox.Append(ctx, outboxDomain.TopicUserRegistered, outboxDomain.UserEventPayload{
			UserID:     user.ID.String(),
			Email:      user.Email,
			OccurredAt: now.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		return uc.verification.SendEmailVerification(ctx, user.ID)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("user registered", slog.String("user_id", user.ID.String()))
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (uc *UserUseCase) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return uc.userRepo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
}

// GetUserByID retrieves a user by ID
func (uc *UserUseCase) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return uc.userRepo.GetByID(ctx, id)
}

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	outboxDomain "github.com/allisson/identity/internal/outbox/domain"
	outboxUseCase "github.com/allisson/identity/internal/outbox/usecase"
	recoveryUseCase "github.com/allisson/identity/internal/recovery/usecase"
	"github.com/allisson/identity/internal/testutil"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
	tokenService "github.com/allisson/identity/internal/token/service"
	tokenUseCase "github.com/allisson/identity/internal/token/usecase"
	"github.com/allisson/identity/internal/user/domain"
	"github.com/allisson/identity/internal/user/usecase"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func newRegistration(store *testutil.MemoryStore) usecase.UseCase {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	writer := outboxUseCase.NewWriter(store.Outbox(), clock)
	authority := tokenUseCase.NewAuthority(
		tokenUseCase.DefaultConfig(),
		store.Tokens(),
		tokenService.NewSHA256Generator(),
		clock,
	)
	recovery := recoveryUseCase.NewRecoveryUseCase(
		recoveryUseCase.Config{PublicBaseURL: "https://id.example.com"},
		store.TxManager(),
		store.Users(),
		authority,
		writer,
		plainHasher{},
		clock,
		nil,
	)
	return usecase.NewUserUseCase(store.TxManager(), store.Users(), writer, plainHasher{}, recovery, clock, nil)
}

func TestRegisterUser_QueuesRegistrationAndVerification(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	useCase := newRegistration(store)

	user, err := useCase.RegisterUser(ctx, usecase.RegisterUserInput{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "SecurePass123!",
	})
	require.NoError(t, err)

	messages := store.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, outboxDomain.TopicUserRegistered, messages[0].Topic)
	assert.Equal(t, outboxDomain.TopicEmailVerificationEmail, messages[1].Topic)
	assert.Less(t, messages[0].ID, messages[1].ID)
	assert.Len(t, store.TokensFor(user.ID, tokenDomain.KindEmailVerification), 1)
}

func TestRegisterUser_DuplicateEmailLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	useCase := newRegistration(store)
	input := usecase.RegisterUserInput{Name: "Ana", Email: "ana@example.com", Password: "SecurePass123!"}

	_, err := useCase.RegisterUser(ctx, input)
	require.NoError(t, err)

	input.Email = "ANA@example.com"
	_, err = useCase.RegisterUser(ctx, input)

	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
	assert.Len(t, store.Messages(), 2)
}

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/identity/internal/errors"
	"github.com/allisson/identity/internal/testutil"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
	tokenService "github.com/allisson/identity/internal/token/service"
	"github.com/allisson/identity/internal/token/usecase"
	usecaseMocks "github.com/allisson/identity/internal/token/usecase/mocks"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newMemoryAuthority() (usecase.Authority, *testutil.MemoryStore, *clockwork.FakeClock) {
	store := testutil.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(testNow)
	authority := usecase.NewAuthority(
		usecase.DefaultConfig(),
		store.Tokens(),
		tokenService.NewSHA256Generator(),
		clock,
	)
	return authority, store, clock
}

func TestAuthority_Issue(t *testing.T) {
	ctx := context.Background()

	t.Run("stores only the hash", func(t *testing.T) {
		authority, store, _ := newMemoryAuthority()
		userID := uuid.Must(uuid.NewV7())

		plain, token, err := authority.Issue(ctx, userID, tokenDomain.KindPasswordReset)
		require.NoError(t, err)

		assert.NotEmpty(t, plain)
		assert.Len(t, token.TokenHash, 64)
		assert.NotEqual(t, plain, token.TokenHash)
		assert.Equal(t, tokenService.NewSHA256Generator().Hash(plain), token.TokenHash)
		assert.Equal(t, testNow.Add(time.Hour), token.ExpiresAt)
		assert.Equal(t, testNow, token.CreatedAt)
		assert.Nil(t, token.ConsumedAt)

		stored := store.TokensFor(userID, tokenDomain.KindPasswordReset)
		require.Len(t, stored, 1)
		assert.Equal(t, token.TokenHash, stored[0].TokenHash)
	})

	t.Run("email verification lives 24 hours", func(t *testing.T) {
		authority, _, _ := newMemoryAuthority()

		_, token, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindEmailVerification)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(24*time.Hour), token.ExpiresAt)
	})

	t.Run("fourth pending token is refused", func(t *testing.T) {
		authority, store, _ := newMemoryAuthority()
		userID := uuid.Must(uuid.NewV7())

		for range 3 {
			_, _, err := authority.Issue(ctx, userID, tokenDomain.KindPasswordReset)
			require.NoError(t, err)
		}

		allowed, err := authority.CheckRateLimit(ctx, userID, tokenDomain.KindPasswordReset)
		require.NoError(t, err)
		assert.False(t, allowed)

		_, _, err = authority.Issue(ctx, userID, tokenDomain.KindPasswordReset)
		assert.ErrorIs(t, err, tokenDomain.ErrRateLimitExceeded)
		assert.ErrorIs(t, err, apperrors.ErrTooManyRequests)
		assert.Len(t, store.TokensFor(userID, tokenDomain.KindPasswordReset), 3)

		// Other kinds have their own budget.
		_, _, err = authority.Issue(ctx, userID, tokenDomain.KindEmailVerification)
		assert.NoError(t, err)
	})

	t.Run("expired tokens free the budget", func(t *testing.T) {
		authority, _, clock := newMemoryAuthority()
		userID := uuid.Must(uuid.NewV7())

		for range 3 {
			_, _, err := authority.Issue(ctx, userID, tokenDomain.KindPasswordReset)
			require.NoError(t, err)
		}

		clock.Advance(time.Hour)

		_, _, err := authority.Issue(ctx, userID, tokenDomain.KindPasswordReset)
		assert.NoError(t, err)
	})

	t.Run("unknown kind", func(t *testing.T) {
		authority, _, _ := newMemoryAuthority()

		_, _, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.Kind("magic_link"))
		assert.ErrorIs(t, err, tokenDomain.ErrInvalidKind)
	})

	t.Run("generator error", func(t *testing.T) {
		repo := &usecaseMocks.MockTokenRepository{}
		generator := &failingGenerator{err: errors.New("entropy exhausted")}
		authority := usecase.NewAuthority(usecase.DefaultConfig(), repo, generator, clockwork.NewFakeClockAt(testNow))

		repo.On("LockUser", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("CountPending", mock.Anything, tokenDomain.KindPasswordReset, mock.Anything, testNow).Return(0, nil).Once()

		_, _, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		assert.EqualError(t, err, "entropy exhausted")
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("repository error", func(t *testing.T) {
		repo := &usecaseMocks.MockTokenRepository{}
		authority := usecase.NewAuthority(
			usecase.DefaultConfig(),
			repo,
			tokenService.NewSHA256Generator(),
			clockwork.NewFakeClockAt(testNow),
		)
		dbErr := errors.New("database down")

		repo.On("LockUser", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("CountPending", mock.Anything, tokenDomain.KindPasswordReset, mock.Anything, testNow).Return(0, nil).Once()
		repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Token")).Return(dbErr).Once()

		plain, token, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		assert.ErrorIs(t, err, dbErr)
		assert.Empty(t, plain)
		assert.Nil(t, token)
		repo.AssertExpectations(t)
	})

	t.Run("owner lock error stops issuance", func(t *testing.T) {
		repo := &usecaseMocks.MockTokenRepository{}
		authority := usecase.NewAuthority(
			usecase.DefaultConfig(),
			repo,
			tokenService.NewSHA256Generator(),
			clockwork.NewFakeClockAt(testNow),
		)

		repo.On("LockUser", mock.Anything, mock.Anything).Return(tokenDomain.ErrTokenOwnerNotFound).Once()

		_, _, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		assert.ErrorIs(t, err, tokenDomain.ErrTokenOwnerNotFound)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		repo.AssertNotCalled(t, "CountPending", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

type failingGenerator struct {
	err error
}

func (f *failingGenerator) Generate() (string, string, error) {
	return "", "", f.err
}

func (f *failingGenerator) Hash(plainToken string) string {
	return plainToken
}

func TestAuthority_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		authority, _, _ := newMemoryAuthority()
		plain, token, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		require.NoError(t, err)

		validation, err := authority.Validate(ctx, plain, tokenDomain.KindPasswordReset)
		require.NoError(t, err)
		assert.Equal(t, tokenDomain.StatusValid, validation.Status)
		assert.Equal(t, token.ID, validation.Token.ID)
	})

	t.Run("wrong kind is not found", func(t *testing.T) {
		authority, _, _ := newMemoryAuthority()
		plain, _, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		require.NoError(t, err)

		validation, err := authority.Validate(ctx, plain, tokenDomain.KindEmailVerification)
		require.NoError(t, err)
		assert.Equal(t, tokenDomain.StatusNotFound, validation.Status)
	})

	t.Run("unknown and empty tokens", func(t *testing.T) {
		authority, _, _ := newMemoryAuthority()

		for _, plain := range []string{"", "does-not-exist"} {
			validation, err := authority.Validate(ctx, plain, tokenDomain.KindPasswordReset)
			require.NoError(t, err)
			assert.Equal(t, tokenDomain.StatusNotFound, validation.Status)
			assert.Nil(t, validation.Token)
		}
	})

	t.Run("expired exactly at expiry", func(t *testing.T) {
		authority, _, clock := newMemoryAuthority()
		plain, _, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		require.NoError(t, err)

		clock.Advance(time.Hour - time.Second)
		validation, err := authority.Validate(ctx, plain, tokenDomain.KindPasswordReset)
		require.NoError(t, err)
		assert.True(t, validation.IsValid())

		clock.Advance(time.Second)
		validation, err = authority.Validate(ctx, plain, tokenDomain.KindPasswordReset)
		require.NoError(t, err)
		assert.Equal(t, tokenDomain.StatusExpired, validation.Status)
		assert.ErrorIs(t, validation.Err(), tokenDomain.ErrTokenExpired)
	})

	t.Run("consumed then expired reports expired", func(t *testing.T) {
		authority, _, clock := newMemoryAuthority()
		plain, token, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		require.NoError(t, err)

		_, err = authority.Consume(ctx, token)
		require.NoError(t, err)

		validation, err := authority.Validate(ctx, plain, tokenDomain.KindPasswordReset)
		require.NoError(t, err)
		assert.Equal(t, tokenDomain.StatusAlreadyConsumed, validation.Status)

		clock.Advance(2 * time.Hour)
		validation, err = authority.Validate(ctx, plain, tokenDomain.KindPasswordReset)
		require.NoError(t, err)
		assert.Equal(t, tokenDomain.StatusExpired, validation.Status)
	})

	t.Run("lookup error is returned", func(t *testing.T) {
		repo := &usecaseMocks.MockTokenRepository{}
		authority := usecase.NewAuthority(
			usecase.DefaultConfig(),
			repo,
			tokenService.NewSHA256Generator(),
			clockwork.NewFakeClockAt(testNow),
		)
		dbErr := errors.New("timeout")

		repo.On("GetByTokenHash", mock.Anything, tokenDomain.KindPasswordReset, mock.AnythingOfType("string")).
			Return(nil, dbErr).
			Once()

		_, err := authority.Validate(ctx, "abc", tokenDomain.KindPasswordReset)
		assert.ErrorIs(t, err, dbErr)
		repo.AssertExpectations(t)
	})
}

func TestAuthority_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("single use", func(t *testing.T) {
		authority, _, _ := newMemoryAuthority()
		plain, token, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		require.NoError(t, err)

		consumed, err := authority.Consume(ctx, token)
		require.NoError(t, err)
		require.NotNil(t, consumed.ConsumedAt)
		assert.Equal(t, testNow, *consumed.ConsumedAt)
		assert.Nil(t, token.ConsumedAt, "input token is not mutated")

		_, err = authority.Consume(ctx, token)
		assert.ErrorIs(t, err, tokenDomain.ErrTokenAlreadyConsumed)

		_, err = authority.Consume(ctx, consumed)
		assert.ErrorIs(t, err, tokenDomain.ErrTokenAlreadyConsumed)

		validation, err := authority.Validate(ctx, plain, tokenDomain.KindPasswordReset)
		require.NoError(t, err)
		assert.Equal(t, tokenDomain.StatusAlreadyConsumed, validation.Status)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		authority, _, clock := newMemoryAuthority()
		_, token, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindEmailVerification)
		require.NoError(t, err)

		clock.Advance(24 * time.Hour)

		_, err = authority.Consume(ctx, token)
		assert.ErrorIs(t, err, tokenDomain.ErrTokenExpired)
	})

	t.Run("exactly one concurrent caller wins", func(t *testing.T) {
		authority, _, _ := newMemoryAuthority()
		plain, _, err := authority.Issue(ctx, uuid.Must(uuid.NewV7()), tokenDomain.KindPasswordReset)
		require.NoError(t, err)

		const callers = 20
		var wg sync.WaitGroup
		var mu sync.Mutex
		var successes int
		var conflicts int

		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()

				validation, err := authority.Validate(ctx, plain, tokenDomain.KindPasswordReset)
				if err != nil || validation.Token == nil {
					return
				}

				_, err = authority.Consume(ctx, validation.Token)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, tokenDomain.ErrTokenAlreadyConsumed):
					conflicts++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, callers-1, conflicts)
	})
}

func TestAuthority_InvalidateAllPending(t *testing.T) {
	ctx := context.Background()
	authority, store, _ := newMemoryAuthority()
	userID := uuid.Must(uuid.NewV7())
	otherUserID := uuid.Must(uuid.NewV7())

	for range 2 {
		_, _, err := authority.Issue(ctx, userID, tokenDomain.KindPasswordReset)
		require.NoError(t, err)
	}
	_, _, err := authority.Issue(ctx, otherUserID, tokenDomain.KindPasswordReset)
	require.NoError(t, err)
	_, _, err = authority.Issue(ctx, userID, tokenDomain.KindEmailVerification)
	require.NoError(t, err)

	count, err := authority.InvalidateAllPending(ctx, userID, tokenDomain.KindPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, token := range store.TokensFor(userID, tokenDomain.KindPasswordReset) {
		assert.True(t, token.IsConsumed())
	}
	assert.False(t, store.TokensFor(otherUserID, tokenDomain.KindPasswordReset)[0].IsConsumed())
	assert.False(t, store.TokensFor(userID, tokenDomain.KindEmailVerification)[0].IsConsumed())
}

func TestAuthority_CleanupExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes across kinds", func(t *testing.T) {
		repo := &usecaseMocks.MockTokenRepository{}
		authority := usecase.NewAuthority(
			usecase.DefaultConfig(),
			repo,
			tokenService.NewSHA256Generator(),
			clockwork.NewFakeClockAt(testNow),
		)
		olderThan := testNow.AddDate(0, 0, -7)

		repo.On("DeleteExpired", ctx, tokenDomain.KindPasswordReset, olderThan, false).Return(int64(3), nil).Once()
		repo.On("DeleteExpired", ctx, tokenDomain.KindEmailVerification, olderThan, false).Return(int64(2), nil).Once()

		count, err := authority.CleanupExpired(ctx, 7, false)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
		repo.AssertExpectations(t)
	})

	t.Run("negative days", func(t *testing.T) {
		authority, _, _ := newMemoryAuthority()

		_, err := authority.CleanupExpired(ctx, -1, true)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("dry run keeps rows", func(t *testing.T) {
		authority, store, clock := newMemoryAuthority()
		userID := uuid.Must(uuid.NewV7())
		_, _, err := authority.Issue(ctx, userID, tokenDomain.KindPasswordReset)
		require.NoError(t, err)

		clock.Advance(48 * time.Hour)

		count, err := authority.CleanupExpired(ctx, 1, true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.Len(t, store.TokensFor(userID, tokenDomain.KindPasswordReset), 1)

		count, err = authority.CleanupExpired(ctx, 1, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.Empty(t, store.TokensFor(userID, tokenDomain.KindPasswordReset))
	})
}

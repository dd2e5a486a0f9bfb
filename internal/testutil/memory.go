package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/identity/internal/database"
	outboxDomain "github.com/allisson/identity/internal/outbox/domain"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
	userDomain "github.com/allisson/identity/internal/user/domain"
)

// MemoryStore is an in-memory stand-in for the users, token and outbox tables. Its
// TxManager serializes units of work and restores a snapshot when one fails, so use case
// tests can assert rollback behavior without a database.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users    map[uuid.UUID]userDomain.User
	tokens   map[uuid.UUID]tokenDomain.Token
	messages []outboxDomain.Message
	nextID   int64

	outboxCreateErr error
}

type memorySnapshot struct {
	users    map[uuid.UUID]userDomain.User
	tokens   map[uuid.UUID]tokenDomain.Token
	messages []outboxDomain.Message
	nextID   int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[uuid.UUID]userDomain.User),
		tokens: make(map[uuid.UUID]tokenDomain.Token),
	}
}

// TxManager returns a database.TxManager bound to the store.
func (s *MemoryStore) TxManager() database.TxManager {
	return &memoryTxManager{store: s}
}

// Users returns the user repository view of the store.
func (s *MemoryStore) Users() *MemoryUserRepository {
	return &MemoryUserRepository{store: s}
}

// Tokens returns the token repository view of the store.
func (s *MemoryStore) Tokens() *MemoryTokenRepository {
	return &MemoryTokenRepository{store: s}
}

// Outbox returns the outbox repository view of the store.
func (s *MemoryStore) Outbox() *MemoryOutboxRepository {
	return &MemoryOutboxRepository{store: s}
}

// SetOutboxCreateError makes every following outbox insert fail with err.
func (s *MemoryStore) SetOutboxCreateError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboxCreateErr = err
}

// Messages returns a copy of every outbox message in id order.
func (s *MemoryStore) Messages() []outboxDomain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// TokensFor returns the tokens of kind held by userID, oldest first.
func (s *MemoryStore) TokensFor(userID uuid.UUID, kind tokenDomain.Kind) []tokenDomain.Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []tokenDomain.Token
	for _, token := range s.tokens {
		if token.UserID == userID && token.Kind == kind {
			tokens = append(tokens, token)
		}
	}
	slices.SortFunc(tokens, func(a, b tokenDomain.Token) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return tokens
}

func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := memorySnapshot{
		users:    make(map[uuid.UUID]userDomain.User, len(s.users)),
		tokens:   make(map[uuid.UUID]tokenDomain.Token, len(s.tokens)),
		messages: slices.Clone(s.messages),
		nextID:   s.nextID,
	}
	for id, user := range s.users {
		snap.users[id] = user
	}
	for id, token := range s.tokens {
		snap.tokens[id] = token
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.tokens = snap.tokens
	s.messages = snap.messages
	s.nextID = snap.nextID
}

type memoryTxManager struct {
	store *MemoryStore
}

// WithTx runs fn as a unit of work. Nested calls join the outer one.
func (m *memoryTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if database.InTx(ctx) {
		return fn(ctx)
	}

	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	snap := m.store.snapshot()
	committed := false
	defer func() {
		if !committed {
			m.store.restore(snap)
		}
	}()

	if err := fn(database.MarkUnitOfWork(ctx)); err != nil {
		return err
	}
	committed = true
	return nil
}

// MemoryUserRepository implements the user repository on a MemoryStore.
type MemoryUserRepository struct {
	store *MemoryStore
}

// Create stores user. Emails are unique case-insensitively.
func (r *MemoryUserRepository) Create(ctx context.Context, user *userDomain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return userDomain.ErrUserAlreadyExists
		}
	}
	r.store.users[user.ID] = *user
	return nil
}

// Update replaces the stored user.
func (r *MemoryUserRepository) Update(ctx context.Context, user *userDomain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID]; !ok {
		return userDomain.ErrUserNotFound
	}
	r.store.users[user.ID] = *user
	return nil
}

// GetByID returns a copy of the user.
func (r *MemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*userDomain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	user, ok := r.store.users[id]
	if !ok {
		return nil, userDomain.ErrUserNotFound
	}
	return &user, nil
}

// GetByEmail returns a copy of the user with email.
func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*userDomain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, user := range r.store.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, userDomain.ErrUserNotFound
}

// MemoryTokenRepository implements the token repository on a MemoryStore.
type MemoryTokenRepository struct {
	store *MemoryStore
}

// Create stores token.
func (r *MemoryTokenRepository) Create(ctx context.Context, token *tokenDomain.Token) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.tokens[token.ID] = *token
	return nil
}

// GetByTokenHash returns the token of kind with tokenHash.
func (r *MemoryTokenRepository) GetByTokenHash(
	ctx context.Context,
	kind tokenDomain.Kind,
	tokenHash string,
) (*tokenDomain.Token, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, token := range r.store.tokens {
		if token.Kind == kind && token.TokenHash == tokenHash {
			return &token, nil
		}
	}
	return nil, tokenDomain.ErrTokenNotFound
}

// LockUser is a no-op; the store's TxManager already serializes units of work.
func (r *MemoryTokenRepository) LockUser(ctx context.Context, userID uuid.UUID) error {
	return nil
}

// CountPending counts valid tokens of kind for userID at now.
func (r *MemoryTokenRepository) CountPending(
	ctx context.Context,
	kind tokenDomain.Kind,
	userID uuid.UUID,
	now time.Time,
) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	count := 0
	for _, token := range r.store.tokens {
		if token.Kind == kind && token.UserID == userID && token.IsValid(now) {
			count++
		}
	}
	return count, nil
}

// Consume marks the token consumed if it is still valid at consumedAt.
func (r *MemoryTokenRepository) Consume(
	ctx context.Context,
	kind tokenDomain.Kind,
	tokenID uuid.UUID,
	consumedAt time.Time,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	token, ok := r.store.tokens[tokenID]
	if !ok || token.Kind != kind || !token.IsValid(consumedAt) {
		return tokenDomain.ErrTokenAlreadyConsumed
	}
	token.ConsumedAt = &consumedAt
	r.store.tokens[tokenID] = token
	return nil
}

// InvalidatePending consumes every valid token of kind for userID.
func (r *MemoryTokenRepository) InvalidatePending(
	ctx context.Context,
	kind tokenDomain.Kind,
	userID uuid.UUID,
	consumedAt time.Time,
) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var count int64
	for id, token := range r.store.tokens {
		if token.Kind == kind && token.UserID == userID && token.IsValid(consumedAt) {
			token.ConsumedAt = &consumedAt
			r.store.tokens[id] = token
			count++
		}
	}
	return count, nil
}

// DeleteExpired removes tokens of kind expired or consumed before olderThan.
func (r *MemoryTokenRepository) DeleteExpired(
	ctx context.Context,
	kind tokenDomain.Kind,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var count int64
	for id, token := range r.store.tokens {
		if token.Kind != kind {
			continue
		}
		stale := token.ExpiresAt.Before(olderThan) ||
			(token.ConsumedAt != nil && token.ConsumedAt.Before(olderThan))
		if !stale {
			continue
		}
		count++
		if !dryRun {
			delete(r.store.tokens, id)
		}
	}
	return count, nil
}

// MemoryOutboxRepository implements the outbox repository on a MemoryStore.
type MemoryOutboxRepository struct {
	store *MemoryStore
}

// Create appends message with the next id.
func (r *MemoryOutboxRepository) Create(ctx context.Context, message *outboxDomain.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.outboxCreateErr != nil {
		return r.store.outboxCreateErr
	}

	r.store.nextID++
	message.ID = r.store.nextID
	r.store.messages = append(r.store.messages, *message)
	return nil
}

// ListUnpublished returns up to limit unpublished messages in id order.
func (r *MemoryOutboxRepository) ListUnpublished(ctx context.Context, limit int) ([]*outboxDomain.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var messages []*outboxDomain.Message
	for _, message := range r.store.messages {
		if len(messages) >= limit {
			break
		}
		if message.PublishedAt == nil {
			messages = append(messages, &message)
		}
	}
	return messages, nil
}

// MarkPublished sets PublishedAt unless it is already set.
func (r *MemoryOutboxRepository) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for i := range r.store.messages {
		if r.store.messages[i].ID != id {
			continue
		}
		if r.store.messages[i].PublishedAt == nil {
			r.store.messages[i].PublishedAt = &publishedAt
		}
		return nil
	}
	return outboxDomain.ErrMessageNotFound
}

package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/allisson/identity/internal/database"
	apperrors "github.com/allisson/identity/internal/errors"
	"github.com/allisson/identity/internal/outbox/domain"
)

type writer struct {
	repo  MessageRepository
	clock clockwork.Clock
}

// NewWriter creates a Writer backed by repo.
func NewWriter(repo MessageRepository, clock clockwork.Clock) Writer {
	return &writer{
		repo:  repo,
		clock: clock,
	}
}

// Append stores the message in the caller's transaction.
func (w *writer) Append(ctx context.Context, topic string, payload any) (*domain.Message, error) {
	if !database.InTx(ctx) {
		return nil, domain.ErrNoTransaction
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, domain.ErrEmptyTopic
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(domain.ErrMalformedPayload, err.Error())
	}

	message := &domain.Message{
		Topic:     topic,
		Payload:   string(data),
		CreatedAt: w.clock.Now().UTC(),
	}

	if err := w.repo.Create(ctx, message); err != nil {
		return nil, err
	}

	return message, nil
}

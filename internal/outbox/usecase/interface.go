// Package usecase implements the transactional outbox: appending messages inside a unit of
// work and relaying them to their handlers.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/identity/internal/audit"
	"github.com/allisson/identity/internal/notification"
	"github.com/allisson/identity/internal/outbox/domain"
)

// MessageRepository defines outbox message persistence operations.
type MessageRepository interface {
	// Create inserts message and assigns message.ID.
	Create(ctx context.Context, message *domain.Message) error

	// ListUnpublished returns up to limit unpublished messages ordered by id, locking them
	// against other relays for the rest of the transaction.
	ListUnpublished(ctx context.Context, limit int) ([]*domain.Message, error)

	// MarkPublished records publishedAt. Repeated calls succeed; an unknown id returns
	// ErrMessageNotFound.
	MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error
}

// Writer appends messages to the outbox.
type Writer interface {
	// Append JSON-encodes payload and stores it as an unpublished message. ctx must carry a
	// unit of work started by database.TxManager, otherwise ErrNoTransaction is returned.
	Append(ctx context.Context, topic string, payload any) (*domain.Message, error)
}

// Handler processes one outbox message. A nil error means the message can be marked published.
type Handler interface {
	Handle(ctx context.Context, message *domain.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, message *domain.Message) error

// Handle calls f(ctx, message).
func (f HandlerFunc) Handle(ctx context.Context, message *domain.Message) error {
	return f(ctx, message)
}

// EmailSender delivers rendered emails.
type EmailSender interface {
	SendEmail(ctx context.Context, email notification.Email) error
}

// AuditSink receives identity events.
type AuditSink interface {
	Publish(ctx context.Context, event audit.Event) error
}

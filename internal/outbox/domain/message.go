// Package domain defines the transactional outbox message and its topics.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/allisson/identity/internal/errors"
)

// Message is a notification intent written in the same transaction as the state change it
// documents. ID is assigned by the store and increases monotonically.
type Message struct {
	ID          int64
	Topic       string
	Payload     string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// IsPublished reports whether the relay already delivered the message.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// IdempotencyKey is a stable key downstream consumers can use to drop duplicate deliveries.
func (m *Message) IdempotencyKey() string {
	return fmt.Sprintf("outbox-%d", m.ID)
}

// DecodePayload unmarshals the JSON payload into v.
func (m *Message) DecodePayload(v any) error {
	if err := json.Unmarshal([]byte(m.Payload), v); err != nil {
		return errors.Wrap(ErrMalformedPayload, err.Error())
	}
	return nil
}

// Outbox errors.
var (
	// ErrMessageNotFound indicates no outbox message has the given id.
	ErrMessageNotFound = errors.Wrap(errors.ErrNotFound, "outbox message not found")

	// ErrMalformedPayload indicates the payload could not be encoded or decoded.
	ErrMalformedPayload = errors.Wrap(errors.ErrInvalidInput, "malformed outbox payload")

	// ErrNoTransaction indicates Append was called outside a unit of work.
	ErrNoTransaction = errors.New("outbox append requires a transaction")

	// ErrEmptyTopic indicates Append was called without a topic.
	ErrEmptyTopic = errors.Wrap(errors.ErrInvalidInput, "outbox topic is required")
)

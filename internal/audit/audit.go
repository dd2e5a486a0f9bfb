// Package audit forwards identity.* outbox messages to an audit trail.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event is one audit record derived from an outbox message.
type Event struct {
	Topic          string          `json:"topic"`
	IdempotencyKey string          `json:"idempotencyKey"`
	OccurredAt     time.Time       `json:"occurredAt"`
	Payload        json.RawMessage `json:"payload"`
}

// Sink receives audit events. Implementations must tolerate redelivery of the same
// IdempotencyKey.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event at info level.
func (s *LogSink) Publish(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit event",
		slog.String("topic", event.Topic),
		slog.String("idempotency_key", event.IdempotencyKey),
		slog.Time("occurred_at", event.OccurredAt),
		slog.String("payload", string(event.Payload)),
	)
	return nil
}

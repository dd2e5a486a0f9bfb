package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second
)

// publisher is the subset of jetstream.JetStream used by NATSSink.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSSink publishes audit events to JetStream. The idempotency key is sent as the
// message ID so the stream drops duplicates inside its deduplication window.
type NATSSink struct {
	nc            *nats.Conn
	js            publisher
	subjectPrefix string
}

// NewNATSSink connects to natsURL and returns a sink publishing under subjectPrefix.
func NewNATSSink(natsURL, subjectPrefix string, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := natsOptions(logger)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &NATSSink{nc: nc, js: js, subjectPrefix: subjectPrefix}, nil
}

func natsOptions(logger *slog.Logger) []nats.Option {
	return []nats.Option{
		nats.Name("identity-audit"),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
}

// Subject maps an outbox topic to a NATS subject, e.g. audit.identity.user.registered.
func (s *NATSSink) Subject(topic string) string {
	prefix := strings.TrimSuffix(s.subjectPrefix, ".")
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

// Publish sends the event and waits for the stream acknowledgement.
func (s *NATSSink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	if _, err := s.js.Publish(ctx, s.Subject(event.Topic), data, jetstream.WithMsgID(event.IdempotencyKey)); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// Close drains the underlying connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

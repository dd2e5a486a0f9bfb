package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/allisson/identity/internal/audit"
	apperrors "github.com/allisson/identity/internal/errors"
	"github.com/allisson/identity/internal/notification"
	"github.com/allisson/identity/internal/outbox/domain"
)

// NewEmailHandler renders notification.email.* messages with the template named by the
// payload's templateType and sends them.
func NewEmailHandler(sender EmailSender) Handler {
	return HandlerFunc(func(ctx context.Context, message *domain.Message) error {
		var payload domain.EmailPayload
		if err := message.DecodePayload(&payload); err != nil {
			return err
		}
		if payload.To == "" {
			return apperrors.Wrap(domain.ErrMalformedPayload, "missing recipient")
		}

		subject, ok := emailSubjects[payload.TemplateType]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTemplate, payload.TemplateType)
		}

		html, err := renderTemplate(payload.TemplateType, payload)
		if err != nil {
			return err
		}

		return sender.SendEmail(ctx, notification.Email{
			To:             payload.To,
			Subject:        subject,
			HTML:           html,
			IdempotencyKey: message.IdempotencyKey(),
		})
	})
}

// NewInvitationHandler sends the invitation email for identity.invitation.created.
func NewInvitationHandler(sender EmailSender) Handler {
	return HandlerFunc(func(ctx context.Context, message *domain.Message) error {
		var payload domain.InvitationPayload
		if err := message.DecodePayload(&payload); err != nil {
			return err
		}
		if payload.Email == "" {
			return apperrors.Wrap(domain.ErrMalformedPayload, "missing invitee email")
		}

		html, err := renderTemplate(invitationTemplate, payload)
		if err != nil {
			return err
		}

		subject := "You have been invited"
		if org := strings.TrimSpace(payload.OrganizationName); org != "" {
			subject = fmt.Sprintf("You have been invited to join %s", org)
		}

		return sender.SendEmail(ctx, notification.Email{
			To:             payload.Email,
			Subject:        subject,
			HTML:           html,
			IdempotencyKey: message.IdempotencyKey(),
		})
	})
}

// NewAuditHandler forwards the raw message to the audit sink.
func NewAuditHandler(sink AuditSink) Handler {
	return HandlerFunc(func(ctx context.Context, message *domain.Message) error {
		if !json.Valid([]byte(message.Payload)) {
			return domain.ErrMalformedPayload
		}

		return sink.Publish(ctx, audit.Event{
			Topic:          message.Topic,
			IdempotencyKey: message.IdempotencyKey(),
			OccurredAt:     message.CreatedAt,
			Payload:        json.RawMessage(message.Payload),
		})
	})
}

// NewFallbackHandler logs messages nobody routes and lets the relay mark them published, so an
// unknown topic never blocks the queue.
func NewFallbackHandler(logger *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, message *domain.Message) error {
		if logger != nil {
			logger.WarnContext(ctx, "no handler for outbox topic",
				slog.Int64("message_id", message.ID),
				slog.String("topic", message.Topic),
			)
		}
		return nil
	})
}

// NewDefaultRouter wires the identity topics to their handlers.
func NewDefaultRouter(sender EmailSender, sink AuditSink, logger *slog.Logger) *Router {
	return NewRouter(NewFallbackHandler(logger)).
		HandlePrefix(domain.TopicEmailPrefix, NewEmailHandler(sender)).
		Handle(domain.TopicInvitationCreated, NewInvitationHandler(sender)).
		HandlePrefix(domain.TopicIdentityPrefix, NewAuditHandler(sink))
}

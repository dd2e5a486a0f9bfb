package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/identity/internal/outbox/domain"
)

func namedHandler(name string, calls *[]string) Handler {
	return HandlerFunc(func(ctx context.Context, message *domain.Message) error {
		*calls = append(*calls, name)
		return nil
	})
}

func TestRouter_Route(t *testing.T) {
	var calls []string

	router := NewRouter(namedHandler("fallback", &calls)).
		HandlePrefix("identity.", namedHandler("identity", &calls)).
		HandlePrefix("identity.user.", namedHandler("identity.user", &calls)).
		Handle("identity.invitation.created", namedHandler("invitation", &calls)).
		HandlePrefix("notification.email.", namedHandler("email", &calls))

	tests := []struct {
		topic string
		want  string
	}{
		{topic: "identity.invitation.created", want: "invitation"},
		{topic: "identity.user.registered", want: "identity.user"},
		{topic: "identity.organization.created", want: "identity"},
		{topic: "notification.email.password_reset", want: "email"},
		{topic: "billing.invoice.paid", want: "fallback"},
		{topic: "", want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			calls = nil
			handler := router.Route(tt.topic)
			require.NotNil(t, handler)
			require.NoError(t, handler.Handle(context.Background(), &domain.Message{Topic: tt.topic}))
			assert.Equal(t, []string{tt.want}, calls)
		})
	}
}

func TestRouter_HandlePrefixReplaces(t *testing.T) {
	var calls []string

	router := NewRouter(nil).
		HandlePrefix("identity.", namedHandler("old", &calls)).
		HandlePrefix("identity.", namedHandler("new", &calls))

	require.NoError(t, router.Route("identity.x").Handle(context.Background(), &domain.Message{}))
	assert.Equal(t, []string{"new"}, calls)
	assert.Nil(t, router.Route("other"))
}

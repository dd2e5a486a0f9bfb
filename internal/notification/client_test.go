package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/identity/internal/errors"
)

func TestClient_SendEmail(t *testing.T) {
	t.Run("posts json with idempotency key", func(t *testing.T) {
		var received Email
		var headers http.Header

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/emails", r.URL.Path)
			headers = r.Header.Clone()
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL + "/", APIKey: "secret"}, nil)

		err := client.SendEmail(context.Background(), Email{
			To:             "ana@example.com",
			Subject:        "Reset your password",
			HTML:           "<p>hi</p>",
			IdempotencyKey: "outbox-1",
		})
		require.NoError(t, err)

		assert.Equal(t, "ana@example.com", received.To)
		assert.Equal(t, "Reset your password", received.Subject)
		assert.Equal(t, "outbox-1", headers.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
		assert.Equal(t, "application/json", headers.Get("Content-Type"))
	})

	t.Run("client error is a dispatch failure without retry", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad recipient", http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, RetryMax: 3}, nil)

		err := client.SendEmail(context.Background(), Email{To: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDispatchFailure)
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		assert.Contains(t, err.Error(), "status 422")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server error is retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, RetryMax: 1}, nil)

		err := client.SendEmail(context.Background(), Email{To: "x"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("timeout is a dispatch failure", func(t *testing.T) {
		done := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-done:
			}
		}))
		defer server.Close()
		defer close(done)

		client := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, nil)

		start := time.Now()
		err := client.SendEmail(context.Background(), Email{To: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDispatchFailure)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost"}, nil)
	assert.Equal(t, DefaultTimeout, client.timeout)
	assert.Equal(t, 0, client.httpClient.RetryMax)
}

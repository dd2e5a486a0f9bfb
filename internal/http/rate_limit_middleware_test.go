package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRateLimitedRouter(ctx context.Context, rps float64, burst int) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := gin.New()
	router.Use(RecoveryRateLimitMiddleware(ctx, rps, burst, logger))
	router.POST("/v1/password-reset/request", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"message": "ok"})
	})
	return router
}

func sendFrom(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/password-reset/request", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

func TestRecoveryRateLimitMiddleware(t *testing.T) {
	t.Run("allows requests within burst", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		router := newRateLimitedRouter(ctx, 1, 3)

		for i := 0; i < 3; i++ {
			w := sendFrom(router, "192.0.2.1:1000")
			assert.Equal(t, http.StatusAccepted, w.Code)
		}
	})

	t.Run("blocks requests exceeding burst", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		router := newRateLimitedRouter(ctx, 1, 2)

		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusAccepted, sendFrom(router, "192.0.2.1:1000").Code)
		}

		w := sendFrom(router, "192.0.2.1:1000")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
	})

	t.Run("tracks clients independently", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		router := newRateLimitedRouter(ctx, 1, 1)

		assert.Equal(t, http.StatusAccepted, sendFrom(router, "192.0.2.1:1000").Code)
		assert.Equal(t, http.StatusTooManyRequests, sendFrom(router, "192.0.2.1:1000").Code)
		assert.Equal(t, http.StatusAccepted, sendFrom(router, "192.0.2.2:1000").Code)
	})

	t.Run("refills tokens over time", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		router := newRateLimitedRouter(ctx, 20, 1)

		assert.Equal(t, http.StatusAccepted, sendFrom(router, "192.0.2.1:1000").Code)
		assert.Equal(t, http.StatusTooManyRequests, sendFrom(router, "192.0.2.1:1000").Code)

		time.Sleep(100 * time.Millisecond)

		assert.Equal(t, http.StatusAccepted, sendFrom(router, "192.0.2.1:1000").Code)
	})
}

func TestIPRateLimiterStore_Sweep(t *testing.T) {
	store := &ipRateLimiterStore{rps: 1, burst: 1}
	store.getLimiter("192.0.2.1")
	store.getLimiter("192.0.2.2")

	val, ok := store.limiters.Load("192.0.2.1")
	assert.True(t, ok)
	entry := val.(*ipRateLimiterEntry)
	entry.mu.Lock()
	entry.lastAccess = time.Now().Add(-2 * time.Hour)
	entry.mu.Unlock()

	store.sweep(time.Now().Add(-1 * time.Hour))

	_, ok = store.limiters.Load("192.0.2.1")
	assert.False(t, ok)
	_, ok = store.limiters.Load("192.0.2.2")
	assert.True(t, ok)
}

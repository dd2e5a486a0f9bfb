// Package integration provides end-to-end tests for the identity API against PostgreSQL and MySQL.
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/identity/internal/app"
	"github.com/allisson/identity/internal/config"
	"github.com/allisson/identity/internal/notification"
	"github.com/allisson/identity/internal/testutil"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
)

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// mailbox records emails posted to the fake notification service.
type mailbox struct {
	mu     sync.Mutex
	emails []notification.Email
	keys   []string
}

func (m *mailbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var email notification.Email
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.emails = append(m.emails, email)
	m.keys = append(m.keys, r.Header.Get("Idempotency-Key"))
	m.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (m *mailbox) last(t *testing.T) notification.Email {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.emails, "no email delivered")
	return m.emails[len(m.emails)-1]
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.emails)
}

// integrationTestContext holds all dependencies and state for integration testing.
type integrationTestContext struct {
	container *app.Container
	db        *sql.DB
	server    *httptest.Server
	mailbox   *mailbox
	notifier  *httptest.Server
}

func setupIntegrationTest(t *testing.T, dbDriver string) *integrationTestContext {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var db *sql.DB
	var dsn string
	if dbDriver == "postgres" {
		testutil.SkipIfNoPostgres(t)
		db = testutil.SetupPostgresDB(t)
		dsn = testutil.GetPostgresTestDSN()
	} else {
		testutil.SkipIfNoMySQL(t)
		db = testutil.SetupMySQLDB(t)
		dsn = testutil.GetMySQLTestDSN()
	}

	box := &mailbox{}
	notifier := httptest.NewServer(box)

	cfg := &config.Config{
		DBDriver:             dbDriver,
		DBConnectionString:   dsn,
		DBMaxOpenConnections: 10,
		DBMaxIdleConnections: 5,
		DBConnMaxLifetime:    time.Hour,
		ServerHost:           "localhost",
		ServerPort:           8080,
		PublicBaseURL:        "https://id.example.com",
		LogLevel:             "error",
		TokenMaxPending:      3,
		NotificationURL:      notifier.URL,
		NotificationTimeout:  5 * time.Second,
		AuditSink:            "log",
		RelayBatchSize:       50,
	}

	container := app.NewContainer(cfg)

	httpSrv, err := container.HTTPServer()
	require.NoError(t, err, "failed to get HTTP server")

	return &integrationTestContext{
		container: container,
		db:        db,
		server:    httptest.NewServer(httpSrv.GetHandler()),
		mailbox:   box,
		notifier:  notifier,
	}
}

func teardownIntegrationTest(t *testing.T, ctx *integrationTestContext) {
	t.Helper()

	ctx.server.Close()
	ctx.notifier.Close()
	if err := ctx.container.Shutdown(context.Background()); err != nil {
		t.Logf("Warning: container shutdown error: %v", err)
	}
	testutil.TeardownDB(t, ctx.db)
}

func (ctx *integrationTestContext) post(t *testing.T, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	bodyBytes, err := json.Marshal(body)
	require.NoError(t, err)

	client := &http.Client{Timeout: 10 * time.Second}
	//nolint:gosec // controlled test environment with localhost URLs
	resp, err := client.Post(ctx.server.URL+path, "application/json", bytes.NewReader(bodyBytes))
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	return resp, respBody
}

// relay runs one outbox relay cycle and returns how many messages were published.
func (ctx *integrationTestContext) relay(t *testing.T) int {
	t.Helper()

	relay, err := ctx.container.Relay()
	require.NoError(t, err)

	result, err := relay.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Failed)
	return result.Published
}

func tokenFrom(t *testing.T, email notification.Email) string {
	t.Helper()
	match := tokenPattern.FindStringSubmatch(email.HTML)
	require.Len(t, match, 2, "email does not contain a token link")
	return match[1]
}

func TestIntegration_RecoveryFlows(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, driver := range []string{"postgres", "mysql"} {
		t.Run(driver, func(t *testing.T) {
			ctx := setupIntegrationTest(t, driver)
			defer teardownIntegrationTest(t, ctx)

			// Registration queues a registered event and a verification email.
			resp, body := ctx.post(t, "/v1/users", map[string]string{
				"name":     "John Doe",
				"email":    "John@Example.com",
				"password": "Str0ng!Passw0rd",
			})
			require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

			var user map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &user))
			assert.Equal(t, "john@example.com", user["email"])
			assert.Equal(t, false, user["email_verified"])

			assert.Equal(t, 2, ctx.relay(t))
			verification := ctx.mailbox.last(t)
			assert.Equal(t, "john@example.com", verification.To)
			verificationToken := tokenFrom(t, verification)

			// A second relay cycle has nothing left to publish.
			assert.Equal(t, 0, ctx.relay(t))
			assert.Equal(t, 1, ctx.mailbox.count())

			t.Run("email verification", func(t *testing.T) {
				resp, body := ctx.post(t, "/v1/email-verification/validate", map[string]string{"token": verificationToken})
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.JSONEq(t, `{"valid":true}`, string(body))

				resp, _ = ctx.post(t, "/v1/email-verification/confirm", map[string]string{"token": verificationToken})
				assert.Equal(t, http.StatusNoContent, resp.StatusCode)

				resp, body = ctx.post(t, "/v1/email-verification/confirm", map[string]string{"token": verificationToken})
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
				assert.Contains(t, string(body), "invalid_token")

				assert.Equal(t, 1, ctx.relay(t))
			})

			t.Run("password reset", func(t *testing.T) {
				resp, _ := ctx.post(t, "/v1/password-reset/request", map[string]string{"email": "john@example.com"})
				require.Equal(t, http.StatusAccepted, resp.StatusCode)

				// Unknown addresses get the same answer and no email.
				resp, _ = ctx.post(t, "/v1/password-reset/request", map[string]string{"email": "nobody@example.com"})
				require.Equal(t, http.StatusAccepted, resp.StatusCode)

				assert.Equal(t, 1, ctx.relay(t))
				resetToken := tokenFrom(t, ctx.mailbox.last(t))

				resp, body := ctx.post(t, "/v1/password-reset/validate", map[string]string{"token": resetToken})
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.JSONEq(t, `{"valid":true}`, string(body))

				resp, body = ctx.post(t, "/v1/password-reset/confirm", map[string]string{
					"token":    resetToken,
					"password": "weak",
				})
				assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

				resp, _ = ctx.post(t, "/v1/password-reset/confirm", map[string]string{
					"token":    resetToken,
					"password": "N3w!Passw0rd#2",
				})
				assert.Equal(t, http.StatusNoContent, resp.StatusCode)

				resp, _ = ctx.post(t, "/v1/password-reset/confirm", map[string]string{
					"token":    resetToken,
					"password": "An0ther!Passw0rd",
				})
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

				resp, body = ctx.post(t, "/v1/password-reset/validate", map[string]string{"token": resetToken})
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.JSONEq(t, `{"valid":false}`, string(body))

				assert.Equal(t, 1, ctx.relay(t))
			})

			t.Run("cleanup expired tokens", func(t *testing.T) {
				authority, err := ctx.container.TokenAuthority()
				require.NoError(t, err)

				count, err := authority.CleanupExpired(context.Background(), 0, true)
				require.NoError(t, err)
				assert.Equal(t, int64(2), count)
			})
		})
	}
}

func TestIntegration_ConcurrentIssueRespectsPendingCap(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, driver := range []string{"postgres", "mysql"} {
		t.Run(driver, func(t *testing.T) {
			ctx := setupIntegrationTest(t, driver)
			defer teardownIntegrationTest(t, ctx)

			userID := testutil.CreateTestUser(t, ctx.db, driver, "race@example.com")

			authority, err := ctx.container.TokenAuthority()
			require.NoError(t, err)
			txManager, err := ctx.container.TxManager()
			require.NoError(t, err)
			tokenRepo, err := ctx.container.TokenRepository()
			require.NoError(t, err)

			issue := func() error {
				return txManager.WithTx(context.Background(), func(txCtx context.Context) error {
					_, _, err := authority.Issue(txCtx, userID, tokenDomain.KindPasswordReset)
					return err
				})
			}

			for range 2 {
				require.NoError(t, issue())
			}

			const callers = 5
			errs := make(chan error, callers)
			var wg sync.WaitGroup
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- issue()
				}()
			}
			wg.Wait()
			close(errs)

			issued := 0
			for err := range errs {
				if err == nil {
					issued++
					continue
				}
				assert.ErrorIs(t, err, tokenDomain.ErrRateLimitExceeded)
			}
			assert.Equal(t, 1, issued)

			pending, err := tokenRepo.CountPending(
				context.Background(),
				tokenDomain.KindPasswordReset,
				userID,
				time.Now().UTC(),
			)
			require.NoError(t, err)
			assert.Equal(t, 3, pending)
		})
	}
}

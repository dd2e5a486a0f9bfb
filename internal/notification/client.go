// Package notification implements the HTTP client for the notification dispatch service.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/allisson/identity/internal/errors"
)

const (
	emailsPath = "/v1/emails"

	// DefaultTimeout bounds a single SendEmail call, retries included.
	DefaultTimeout = 5 * time.Second
)

// ErrDispatchFailure indicates the notification service did not accept the email.
var ErrDispatchFailure = errors.Wrap(errors.ErrUnavailable, "notification dispatch failed")

// Email is a rendered message ready for delivery.
type Email struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	HTML           string `json:"html"`
	Text           string `json:"text,omitempty"`
	IdempotencyKey string `json:"-"`
}

// Config holds notification client configuration.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	RetryMax int
}

// Client sends emails through the notification service.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *retryablehttp.Client
}

// NewClient creates a Client. Failed calls are retried RetryMax times with backoff while
// the whole call stays within Timeout.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = cfg.RetryMax
	httpClient.RetryWaitMin = 100 * time.Millisecond
	httpClient.RetryWaitMax = time.Second
	httpClient.HTTPClient.Timeout = timeout
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.Logger = nil
	if logger != nil {
		httpClient.Logger = logger
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// SendEmail posts the email to {BaseURL}/v1/emails. Any transport error, timeout or
// non-2xx response is returned wrapping ErrDispatchFailure.
func (c *Client) SendEmail(ctx context.Context, email Email) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(email)
	if err != nil {
		return errors.Wrap(err, "failed to marshal email")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+emailsPath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create notification request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if email.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", email.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailure, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrDispatchFailure, resp.StatusCode, strings.TrimSpace(string(message)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

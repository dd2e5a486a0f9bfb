package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/identity/internal/recovery/http/dto"
	"github.com/allisson/identity/internal/recovery/usecase/mocks"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
)

const validToken = "q3Xr_9-AbCdEfGhIjKlMnOpQrStUvWxYz0123456789A"

func setupTestHandler(t *testing.T) (*RecoveryHandler, *mocks.MockUseCase) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	mockUseCase := &mocks.MockUseCase{}
	t.Cleanup(func() { mockUseCase.AssertExpectations(t) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRecoveryHandler(mockUseCase, logger), mockUseCase
}

func createTestContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, _ := json.Marshal(b)
		reader = bytes.NewReader(payload)
	}

	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestRecoveryHandler_RequestPasswordReset(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("RequestPasswordReset", mock.Anything, "alice@example.com").Return(nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/request", dto.EmailRequest{Email: "alice@example.com"})
		handler.RequestPasswordResetHandler(c)

		assert.Equal(t, http.StatusAccepted, w.Code)
		var response dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, acceptedMessage, response.Message)
	})

	t.Run("Error_InvalidJSON", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/request", "invalid json")
		handler.RequestPasswordResetHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})

	t.Run("Error_InvalidEmail", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/request", dto.EmailRequest{Email: "alice"})
		handler.RequestPasswordResetHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_Internal", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("RequestPasswordReset", mock.Anything, "alice@example.com").
			Return(errors.New("database down")).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/request", dto.EmailRequest{Email: "alice@example.com"})
		handler.RequestPasswordResetHandler(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestRecoveryHandler_ValidatePasswordResetToken(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("ValidatePasswordResetToken", mock.Anything, validToken).Return(true, nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/validate", dto.TokenRequest{Token: validToken})
		handler.ValidatePasswordResetTokenHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"valid":true}`, w.Body.String())
	})

	t.Run("MalformedTokenIsInvalid", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/validate", dto.TokenRequest{Token: "not a token"})
		handler.ValidatePasswordResetTokenHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"valid":false}`, w.Body.String())
	})
}

func TestRecoveryHandler_ResetPassword(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("ResetPassword", mock.Anything, validToken, "N3w-Passw0rd!").Return(nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/confirm", dto.ResetPasswordRequest{
			Token:    validToken,
			Password: "N3w-Passw0rd!",
		})
		handler.ResetPasswordHandler(c)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Error_InvalidToken", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("ResetPassword", mock.Anything, validToken, "N3w-Passw0rd!").
			Return(tokenDomain.ErrInvalidToken).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/confirm", dto.ResetPasswordRequest{
			Token:    validToken,
			Password: "N3w-Passw0rd!",
		})
		handler.ResetPasswordHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"invalid_token","message":"invalid or expired token"}`, w.Body.String())
	})

	t.Run("Error_MalformedTokenLooksTheSame", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/password-reset/confirm", dto.ResetPasswordRequest{
			Token:    "%%%",
			Password: "N3w-Passw0rd!",
		})
		handler.ResetPasswordHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"invalid_token","message":"invalid or expired token"}`, w.Body.String())
	})
}

func TestRecoveryHandler_RequestEmailVerification(t *testing.T) {
	handler, mockUseCase := setupTestHandler(t)
	mockUseCase.On("RequestEmailVerification", mock.Anything, "alice@example.com").Return(nil).Once()

	c, w := createTestContext(http.MethodPost, "/v1/email-verification/request", dto.EmailRequest{Email: "alice@example.com"})
	handler.RequestEmailVerificationHandler(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRecoveryHandler_ValidateEmailVerificationToken(t *testing.T) {
	handler, mockUseCase := setupTestHandler(t)
	mockUseCase.On("ValidateEmailVerificationToken", mock.Anything, validToken).Return(false, nil).Once()

	c, w := createTestContext(http.MethodPost, "/v1/email-verification/validate", dto.TokenRequest{Token: validToken})
	handler.ValidateEmailVerificationTokenHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())
}

func TestRecoveryHandler_ConfirmEmail(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("ConfirmEmail", mock.Anything, validToken).Return(nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/email-verification/confirm", dto.TokenRequest{Token: validToken})
		handler.ConfirmEmailHandler(c)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Error_RateLimited", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("ConfirmEmail", mock.Anything, validToken).Return(tokenDomain.ErrRateLimitExceeded).Once()

		c, w := createTestContext(http.MethodPost, "/v1/email-verification/confirm", dto.TokenRequest{Token: validToken})
		handler.ConfirmEmailHandler(c)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}

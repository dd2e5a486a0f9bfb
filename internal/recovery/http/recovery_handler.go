// Package http provides HTTP handlers for the password reset and email verification flows.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/identity/internal/httputil"
	"github.com/allisson/identity/internal/recovery/http/dto"
	recoveryUseCase "github.com/allisson/identity/internal/recovery/usecase"
)

// acceptedMessage is identical for known and unknown emails.
const acceptedMessage = "If the address is registered, an email is on its way"

// RecoveryHandler handles HTTP requests for credential recovery.
type RecoveryHandler struct {
	recoveryUseCase recoveryUseCase.UseCase
	logger          *slog.Logger
}

// NewRecoveryHandler creates a new recovery handler.
func NewRecoveryHandler(recoveryUseCase recoveryUseCase.UseCase, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{
		recoveryUseCase: recoveryUseCase,
		logger:          logger,
	}
}

// RequestPasswordResetHandler starts a password reset.
// POST /v1/password-reset/request - Always 202 for well-formed emails.
func (h *RecoveryHandler) RequestPasswordResetHandler(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	if err := h.recoveryUseCase.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.AcceptedResponse{Message: acceptedMessage})
}

// ValidatePasswordResetTokenHandler reports whether a reset token is usable.
// POST /v1/password-reset/validate
func (h *RecoveryHandler) ValidatePasswordResetTokenHandler(c *gin.Context) {
	h.validateToken(c, h.recoveryUseCase.ValidatePasswordResetToken)
}

// ResetPasswordHandler completes a password reset.
// POST /v1/password-reset/confirm - Returns 204 on success and 400 invalid_token on any token problem.
func (h *RecoveryHandler) ResetPasswordHandler(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	if err := h.recoveryUseCase.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

// RequestEmailVerificationHandler resends a verification email.
// POST /v1/email-verification/request - Always 202 for well-formed emails.
func (h *RecoveryHandler) RequestEmailVerificationHandler(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	if err := h.recoveryUseCase.RequestEmailVerification(c.Request.Context(), req.Email); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.AcceptedResponse{Message: acceptedMessage})
}

// ValidateEmailVerificationTokenHandler reports whether a verification token is usable.
// POST /v1/email-verification/validate
func (h *RecoveryHandler) ValidateEmailVerificationTokenHandler(c *gin.Context) {
	h.validateToken(c, h.recoveryUseCase.ValidateEmailVerificationToken)
}

// ConfirmEmailHandler marks the email behind the token as verified.
// POST /v1/email-verification/confirm
func (h *RecoveryHandler) ConfirmEmailHandler(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	if err := h.recoveryUseCase.ConfirmEmail(c.Request.Context(), req.Token); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

func (h *RecoveryHandler) validateToken(
	c *gin.Context,
	validate func(ctx context.Context, plainToken string) (bool, error),
) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusOK, dto.ValidationResponse{Valid: false})
		return
	}

	valid, err := validate(c.Request.Context(), req.Token)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ValidationResponse{Valid: valid})
}

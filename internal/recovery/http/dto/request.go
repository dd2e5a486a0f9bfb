// Package dto provides data transfer objects for the recovery HTTP layer.
package dto

import (
	validation "github.com/jellydator/validation"

	tokenDomain "github.com/allisson/identity/internal/token/domain"
	customValidation "github.com/allisson/identity/internal/validation"
)

// EmailRequest starts a password reset or resends a verification email.
type EmailRequest struct {
	Email string `json:"email"`
}

// Validate checks the email address shape.
func (r *EmailRequest) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Email,
			validation.Required,
			customValidation.NotBlank,
			customValidation.Email,
			validation.Length(5, 255),
		),
	)
	return customValidation.WrapValidationError(err)
}

// TokenRequest carries a plain token received by email.
type TokenRequest struct {
	Token string `json:"token"`
}

// Validate rejects malformed tokens with the same error as unknown ones.
func (r *TokenRequest) Validate() error {
	return validateToken(r.Token)
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Validate checks the token shape; password strength is enforced by the use case.
func (r *ResetPasswordRequest) Validate() error {
	if err := validateToken(r.Token); err != nil {
		return err
	}
	err := validation.ValidateStruct(r,
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(8, 128),
		),
	)
	return customValidation.WrapValidationError(err)
}

func validateToken(token string) error {
	err := validation.Validate(token,
		validation.Required,
		customValidation.NoWhitespace,
		customValidation.Base64URL,
		validation.Length(1, 128),
	)
	if err != nil {
		return tokenDomain.ErrInvalidToken
	}
	return nil
}

package dto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/identity/internal/errors"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
)

const validToken = "q3Xr_9-AbCdEfGhIjKlMnOpQrStUvWxYz0123456789A"

func TestEmailRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{name: "valid", email: "alice@example.com", wantErr: false},
		{name: "empty", email: "", wantErr: true},
		{name: "blank", email: "     ", wantErr: true},
		{name: "malformed", email: "alice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := EmailRequest{Email: tt.email}
			err := req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: validToken, wantErr: false},
		{name: "empty", token: "", wantErr: true},
		{name: "whitespace", token: "abc def", wantErr: true},
		{name: "not base64url", token: "abc+/==", wantErr: true},
		{name: "too long", token: strings.Repeat("a", 129), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TokenRequest{Token: tt.token}
			err := req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, tokenDomain.ErrInvalidToken)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResetPasswordRequest_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := ResetPasswordRequest{Token: validToken, Password: "N3w-Passw0rd!"}
		assert.NoError(t, req.Validate())
	})

	t.Run("bad token", func(t *testing.T) {
		req := ResetPasswordRequest{Token: "", Password: "N3w-Passw0rd!"}
		assert.ErrorIs(t, req.Validate(), tokenDomain.ErrInvalidToken)
	})

	t.Run("missing password", func(t *testing.T) {
		req := ResetPasswordRequest{Token: validToken}
		err := req.Validate()
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.NotErrorIs(t, err, tokenDomain.ErrInvalidToken)
	})
}

// Package password hashes user passwords with Argon2id when they are set at registration or
// password reset, optionally mixing in a server-side pepper so a leaked users table cannot
// be attacked offline without the pepper. This service only writes hashes; Verify is the
// matching check for whatever reads them.
package password

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/allisson/go-pwdhash"
	validation "github.com/jellydator/validation"
	"golang.org/x/crypto/hkdf"

	apperrors "github.com/allisson/identity/internal/errors"
	customValidation "github.com/allisson/identity/internal/validation"
)

// pepperInfo is the HKDF info label for the pepper key.
const pepperInfo = "identity-password-pepper-v1"

// Hasher hashes new passwords. Verify checks a candidate against a stored hash.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

type argon2Hasher struct {
	hasher    *pwdhash.PasswordHasher
	pepperKey []byte
}

// Option configures the hasher.
type Option func(*argon2Hasher) error

// WithPepper mixes an HMAC-SHA256 pepper into every password before hashing. The HMAC key is
// derived from pepper with HKDF-SHA256.
func WithPepper(pepper []byte) Option {
	return func(h *argon2Hasher) error {
		if len(pepper) == 0 {
			return nil
		}
		key, err := derivePepperKey(pepper)
		if err != nil {
			return apperrors.Wrap(err, "failed to derive pepper key")
		}
		h.pepperKey = key
		return nil
	}
}

// NewHasher creates an Argon2id Hasher using the interactive cost policy.
func NewHasher(opts ...Option) (Hasher, error) {
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create password hasher")
	}

	h := &argon2Hasher{hasher: hasher}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Hash returns the encoded Argon2id hash of password.
func (h *argon2Hasher) Hash(password string) (string, error) {
	hash, err := h.hasher.Hash(h.prepare(password))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash password")
	}
	return hash, nil
}

// Verify reports whether password matches hash.
func (h *argon2Hasher) Verify(password, hash string) (bool, error) {
	ok, err := h.hasher.Verify(h.prepare(password), hash)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to verify password")
	}
	return ok, nil
}

func (h *argon2Hasher) prepare(password string) []byte {
	if h.pepperKey == nil {
		return []byte(password)
	}
	mac := hmac.New(sha256.New, h.pepperKey)
	mac.Write([]byte(password))
	return []byte(base64.RawStdEncoding.EncodeToString(mac.Sum(nil)))
}

func derivePepperKey(pepper []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, pepper, nil, []byte(pepperInfo))

	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Validate checks password against the default strength policy.
func Validate(password string) error {
	err := validation.Validate(password,
		validation.Required,
		customValidation.DefaultPasswordStrength,
	)
	return customValidation.WrapValidationError(err)
}

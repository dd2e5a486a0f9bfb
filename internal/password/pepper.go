package password

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"gocloud.dev/secrets"

	apperrors "github.com/allisson/identity/internal/errors"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// ErrMissingKMSKeyURI is returned when an encrypted pepper is configured without a key URI.
var ErrMissingKMSKeyURI = apperrors.Wrap(apperrors.ErrInvalidInput, "kms key uri is required to decrypt the pepper")

// PepperConfig describes where the pepper comes from. Ciphertext takes precedence over Plain.
type PepperConfig struct {
	Plain      string
	Ciphertext string
	KMSKeyURI  string
}

// LoadPepper resolves the pepper bytes. An empty result means no pepper is configured.
// Supports: gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://
func LoadPepper(ctx context.Context, cfg PepperConfig) (pepper []byte, err error) {
	if cfg.Ciphertext == "" {
		return []byte(cfg.Plain), nil
	}
	if cfg.KMSKeyURI == "" {
		return nil, ErrMissingKMSKeyURI
	}

	ciphertext, err := base64.StdEncoding.DecodeString(cfg.Ciphertext)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "pepper ciphertext is not valid base64")
	}

	keeper, err := secrets.OpenKeeper(ctx, cfg.KMSKeyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	pepper, err = keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt pepper: %w", err)
	}
	return pepper, nil
}

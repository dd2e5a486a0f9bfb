package password

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets"

	apperrors "github.com/allisson/identity/internal/errors"
)

// generateLocalSecretsURI generates a base64key:// URI for testing.
func generateLocalSecretsURI(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return "base64key://" + base64.URLEncoding.EncodeToString(key)
}

func encryptPepper(t *testing.T, keyURI string, pepper []byte) string {
	t.Helper()
	ctx := context.Background()

	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, keeper.Close())
	}()

	ciphertext, err := keeper.Encrypt(ctx, pepper)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(ciphertext)
}

func TestLoadPepper(t *testing.T) {
	ctx := context.Background()

	t.Run("no pepper configured", func(t *testing.T) {
		pepper, err := LoadPepper(ctx, PepperConfig{})
		require.NoError(t, err)
		assert.Empty(t, pepper)
	})

	t.Run("plain pepper", func(t *testing.T) {
		pepper, err := LoadPepper(ctx, PepperConfig{Plain: "plain-pepper"})
		require.NoError(t, err)
		assert.Equal(t, []byte("plain-pepper"), pepper)
	})

	t.Run("encrypted pepper takes precedence", func(t *testing.T) {
		keyURI := generateLocalSecretsURI(t)
		ciphertext := encryptPepper(t, keyURI, []byte("kms-pepper"))

		pepper, err := LoadPepper(ctx, PepperConfig{
			Plain:      "plain-pepper",
			Ciphertext: ciphertext,
			KMSKeyURI:  keyURI,
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("kms-pepper"), pepper)
	})

	t.Run("missing key uri", func(t *testing.T) {
		_, err := LoadPepper(ctx, PepperConfig{Ciphertext: "c2VjcmV0"})
		assert.ErrorIs(t, err, ErrMissingKMSKeyURI)
	})

	t.Run("invalid base64 ciphertext", func(t *testing.T) {
		_, err := LoadPepper(ctx, PepperConfig{Ciphertext: "not base64!", KMSKeyURI: generateLocalSecretsURI(t)})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("wrong key", func(t *testing.T) {
		ciphertext := encryptPepper(t, generateLocalSecretsURI(t), []byte("kms-pepper"))

		_, err := LoadPepper(ctx, PepperConfig{Ciphertext: ciphertext, KMSKeyURI: generateLocalSecretsURI(t)})
		assert.Error(t, err)
	})

	t.Run("invalid key uri", func(t *testing.T) {
		_, err := LoadPepper(ctx, PepperConfig{Ciphertext: "c2VjcmV0", KMSKeyURI: "invalid://key"})
		assert.Error(t, err)
	})
}

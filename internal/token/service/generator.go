package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"io"

	apperrors "github.com/allisson/identity/internal/errors"
)

// TokenSize is the number of random bytes in a raw token (256 bits).
const TokenSize = 32

// generator implements Generator with an injected random source and hash constructor.
type generator struct {
	random  io.Reader
	newHash func() hash.Hash
}

// NewGenerator creates a Generator reading entropy from random and hashing with newHash.
func NewGenerator(random io.Reader, newHash func() hash.Hash) Generator {
	return &generator{
		random:  random,
		newHash: newHash,
	}
}

// NewSHA256Generator creates a Generator backed by crypto/rand and SHA-256.
func NewSHA256Generator() Generator {
	return NewGenerator(rand.Reader, sha256.New)
}

// Generate reads TokenSize random bytes, encodes them as unpadded base64url and returns
// the encoded token with its hex digest.
func (g *generator) Generate() (string, string, error) {
	randomBytes := make([]byte, TokenSize)
	if _, err := io.ReadFull(g.random, randomBytes); err != nil {
		return "", "", apperrors.Wrap(err, "failed to generate random token")
	}

	plainToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	return plainToken, g.Hash(plainToken), nil
}

// Hash returns the hex encoded digest of plainToken.
func (g *generator) Hash(plainToken string) string {
	h := g.newHash()
	_, _ = h.Write([]byte(plainToken))
	return hex.EncodeToString(h.Sum(nil))
}

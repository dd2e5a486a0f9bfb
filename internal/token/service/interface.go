// Package service provides the cryptographic primitives behind secure tokens.
package service

// Generator creates raw token values and derives the digest that is persisted in their place.
// Implementations must use a cryptographically secure random source and a one-way,
// fixed-size hash.
type Generator interface {
	// Generate creates a new random token. The plain token is handed to the user exactly
	// once; only tokenHash may be stored.
	Generate() (plainToken string, tokenHash string, err error)

	// Hash derives the stored digest for a plain token.
	Hash(plainToken string) string
}

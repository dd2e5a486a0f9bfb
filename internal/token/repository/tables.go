// Package repository provides PostgreSQL and MySQL persistence for secure tokens.
// Each token kind has its own table; the consumed timestamp column name differs per kind.
package repository

import (
	tokenDomain "github.com/allisson/identity/internal/token/domain"
)

// tokenTable names the table and consumed column backing one token kind.
type tokenTable struct {
	name           string
	consumedColumn string
}

var tokenTables = map[tokenDomain.Kind]tokenTable{
	tokenDomain.KindPasswordReset: {
		name:           "password_reset_tokens",
		consumedColumn: "used_at",
	},
	tokenDomain.KindEmailVerification: {
		name:           "email_verification_tokens",
		consumedColumn: "verified_at",
	},
}

func tableFor(kind tokenDomain.Kind) (tokenTable, error) {
	table, ok := tokenTables[kind]
	if !ok {
		return tokenTable{}, tokenDomain.ErrInvalidKind
	}
	return table, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/identity/internal/database"
	apperrors "github.com/allisson/identity/internal/errors"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
)

// PostgreSQLTokenRepository implements secure token persistence for PostgreSQL.
// Uses native UUID types with transaction support via database.GetTx().
type PostgreSQLTokenRepository struct {
	db *sql.DB
}

// NewPostgreSQLTokenRepository creates a new PostgreSQL token repository.
func NewPostgreSQLTokenRepository(db *sql.DB) *PostgreSQLTokenRepository {
	return &PostgreSQLTokenRepository{db: db}
}

// Create inserts a new token into the table for token.Kind.
func (p *PostgreSQLTokenRepository) Create(ctx context.Context, token *tokenDomain.Token) error {
	table, err := tableFor(token.Kind)
	if err != nil {
		return err
	}

	querier := database.GetTx(ctx, p.db)

	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, token_hash, expires_at, %s, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`, table.name, table.consumedColumn)

	_, err = querier.ExecContext(
		ctx,
		query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.ConsumedAt,
		token.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create token")
	}
	return nil
}

// GetByTokenHash retrieves a token by its hash. Returns ErrTokenNotFound if no row matches.
func (p *PostgreSQLTokenRepository) GetByTokenHash(
	ctx context.Context,
	kind tokenDomain.Kind,
	tokenHash string,
) (*tokenDomain.Token, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, p.db)

	query := fmt.Sprintf(`SELECT id, user_id, token_hash, expires_at, %s, created_at
			  FROM %s WHERE token_hash = $1`, table.consumedColumn, table.name)

	token := tokenDomain.Token{Kind: kind}

	err = querier.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.ConsumedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tokenDomain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get token")
	}

	return &token, nil
}

// LockUser locks the user row with FOR UPDATE until the surrounding transaction ends.
func (p *PostgreSQLTokenRepository) LockUser(ctx context.Context, userID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	var id uuid.UUID
	err := querier.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tokenDomain.ErrTokenOwnerNotFound
		}
		return apperrors.Wrap(err, "failed to lock token owner")
	}
	return nil
}

// CountPending counts the user's unconsumed tokens that are still valid at now.
func (p *PostgreSQLTokenRepository) CountPending(
	ctx context.Context,
	kind tokenDomain.Kind,
	userID uuid.UUID,
	now time.Time,
) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	querier := database.GetTx(ctx, p.db)

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s
			  WHERE user_id = $1 AND %s IS NULL AND expires_at > $2`, table.name, table.consumedColumn)

	var count int
	if err := querier.QueryRowContext(ctx, query, userID, now).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count pending tokens")
	}
	return count, nil
}

// Consume sets the consumed timestamp guarded by "IS NULL" so only one caller wins.
func (p *PostgreSQLTokenRepository) Consume(
	ctx context.Context,
	kind tokenDomain.Kind,
	tokenID uuid.UUID,
	consumedAt time.Time,
) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	querier := database.GetTx(ctx, p.db)

	query := fmt.Sprintf(`UPDATE %s SET %s = $1
			  WHERE id = $2 AND %s IS NULL AND expires_at > $1`,
		table.name, table.consumedColumn, table.consumedColumn)

	result, err := querier.ExecContext(ctx, query, consumedAt, tokenID)
	if err != nil {
		return apperrors.Wrap(err, "failed to consume token")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return tokenDomain.ErrTokenAlreadyConsumed
	}
	return nil
}

// InvalidatePending consumes every still-valid token of kind for userID.
func (p *PostgreSQLTokenRepository) InvalidatePending(
	ctx context.Context,
	kind tokenDomain.Kind,
	userID uuid.UUID,
	consumedAt time.Time,
) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	querier := database.GetTx(ctx, p.db)

	query := fmt.Sprintf(`UPDATE %s SET %s = $1
			  WHERE user_id = $2 AND %s IS NULL AND expires_at > $1`,
		table.name, table.consumedColumn, table.consumedColumn)

	result, err := querier.ExecContext(ctx, query, consumedAt, userID)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to invalidate pending tokens")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get rows affected")
	}
	return rows, nil
}

// DeleteExpired deletes (or counts, with dryRun) tokens expired or consumed before olderThan.
func (p *PostgreSQLTokenRepository) DeleteExpired(
	ctx context.Context,
	kind tokenDomain.Kind,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	querier := database.GetTx(ctx, p.db)
	where := fmt.Sprintf(`WHERE expires_at < $1 OR %s < $1`, table.consumedColumn)

	if dryRun {
		var count int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, table.name, where)
		if err := querier.QueryRowContext(ctx, query, olderThan).Scan(&count); err != nil {
			return 0, apperrors.Wrap(err, "failed to count expired tokens")
		}
		return count, nil
	}

	query := fmt.Sprintf(`DELETE FROM %s %s`, table.name, where)
	result, err := querier.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired tokens")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get rows affected")
	}
	return rows, nil
}

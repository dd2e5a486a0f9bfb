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

// MySQLTokenRepository implements secure token persistence for MySQL.
// UUIDs are stored as BINARY(16); timestamps as DATETIME(6).
type MySQLTokenRepository struct {
	db *sql.DB
}

// NewMySQLTokenRepository creates a new MySQL token repository.
func NewMySQLTokenRepository(db *sql.DB) *MySQLTokenRepository {
	return &MySQLTokenRepository{db: db}
}

// Create inserts a new token into the table for token.Kind.
func (m *MySQLTokenRepository) Create(ctx context.Context, token *tokenDomain.Token) error {
	table, err := tableFor(token.Kind)
	if err != nil {
		return err
	}

	id, err := token.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token id")
	}
	userID, err := token.UserID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal user id")
	}

	querier := database.GetTx(ctx, m.db)

	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, token_hash, expires_at, %s, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`, table.name, table.consumedColumn)

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		userID,
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
func (m *MySQLTokenRepository) GetByTokenHash(
	ctx context.Context,
	kind tokenDomain.Kind,
	tokenHash string,
) (*tokenDomain.Token, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	querier := database.GetTx(ctx, m.db)

	query := fmt.Sprintf(`SELECT id, user_id, token_hash, expires_at, %s, created_at
			  FROM %s WHERE token_hash = ?`, table.consumedColumn, table.name)

	token := tokenDomain.Token{Kind: kind}
	var id, userID []byte

	err = querier.QueryRowContext(ctx, query, tokenHash).Scan(
		&id,
		&userID,
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

	if err := token.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal token id")
	}
	if err := token.UserID.UnmarshalBinary(userID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal user id")
	}

	return &token, nil
}

// LockUser locks the user row with FOR UPDATE until the surrounding transaction ends.
func (m *MySQLTokenRepository) LockUser(ctx context.Context, userID uuid.UUID) error {
	id, err := userID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal user id")
	}

	querier := database.GetTx(ctx, m.db)

	var locked []byte
	err = querier.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ? FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tokenDomain.ErrTokenOwnerNotFound
		}
		return apperrors.Wrap(err, "failed to lock token owner")
	}
	return nil
}

// CountPending counts the user's unconsumed tokens that are still valid at now.
func (m *MySQLTokenRepository) CountPending(
	ctx context.Context,
	kind tokenDomain.Kind,
	userID uuid.UUID,
	now time.Time,
) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	id, err := userID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal user id")
	}

	querier := database.GetTx(ctx, m.db)

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s
			  WHERE user_id = ? AND %s IS NULL AND expires_at > ?`, table.name, table.consumedColumn)

	var count int
	if err := querier.QueryRowContext(ctx, query, id, now).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count pending tokens")
	}
	return count, nil
}

// Consume sets the consumed timestamp guarded by "IS NULL" so only one caller wins.
func (m *MySQLTokenRepository) Consume(
	ctx context.Context,
	kind tokenDomain.Kind,
	tokenID uuid.UUID,
	consumedAt time.Time,
) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	id, err := tokenID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal token id")
	}

	querier := database.GetTx(ctx, m.db)

	query := fmt.Sprintf(`UPDATE %s SET %s = ?
			  WHERE id = ? AND %s IS NULL AND expires_at > ?`,
		table.name, table.consumedColumn, table.consumedColumn)

	result, err := querier.ExecContext(ctx, query, consumedAt, id, consumedAt)
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
func (m *MySQLTokenRepository) InvalidatePending(
	ctx context.Context,
	kind tokenDomain.Kind,
	userID uuid.UUID,
	consumedAt time.Time,
) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	id, err := userID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal user id")
	}

	querier := database.GetTx(ctx, m.db)

	query := fmt.Sprintf(`UPDATE %s SET %s = ?
			  WHERE user_id = ? AND %s IS NULL AND expires_at > ?`,
		table.name, table.consumedColumn, table.consumedColumn)

	result, err := querier.ExecContext(ctx, query, consumedAt, id, consumedAt)
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
func (m *MySQLTokenRepository) DeleteExpired(
	ctx context.Context,
	kind tokenDomain.Kind,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	querier := database.GetTx(ctx, m.db)
	where := fmt.Sprintf(`WHERE expires_at < ? OR %s < ?`, table.consumedColumn)

	if dryRun {
		var count int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, table.name, where)
		if err := querier.QueryRowContext(ctx, query, olderThan, olderThan).Scan(&count); err != nil {
			return 0, apperrors.Wrap(err, "failed to count expired tokens")
		}
		return count, nil
	}

	query := fmt.Sprintf(`DELETE FROM %s %s`, table.name, where)
	result, err := querier.ExecContext(ctx, query, olderThan, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired tokens")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get rows affected")
	}
	return rows, nil
}

// Package repository provides data persistence implementations for outbox messages.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/identity/internal/database"
	apperrors "github.com/allisson/identity/internal/errors"
	"github.com/allisson/identity/internal/outbox/domain"
)

// PostgreSQLOutboxRepository handles outbox message persistence for PostgreSQL
type PostgreSQLOutboxRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxRepository creates a new PostgreSQLOutboxRepository
func NewPostgreSQLOutboxRepository(db *sql.DB) *PostgreSQLOutboxRepository {
	return &PostgreSQLOutboxRepository{
		db: db,
	}
}

// Create inserts a new outbox message and sets message.ID from the BIGSERIAL column
func (r *PostgreSQLOutboxRepository) Create(ctx context.Context, message *domain.Message) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_messages (topic, payload, created_at, published_at)
			  VALUES ($1, $2, $3, $4) RETURNING id`

	err := querier.QueryRowContext(
		ctx,
		query,
		message.Topic,
		message.Payload,
		message.CreatedAt,
		message.PublishedAt,
	).Scan(&message.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox message")
	}
	return nil
}

// ListUnpublished retrieves up to limit unpublished messages in id order. Rows are locked
// with SKIP LOCKED so concurrent relays never pick the same message.
func (r *PostgreSQLOutboxRepository) ListUnpublished(ctx context.Context, limit int) ([]*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, topic, payload, created_at, published_at
			  FROM outbox_messages
			  WHERE published_at IS NULL
			  ORDER BY id ASC
			  LIMIT $1
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list unpublished outbox messages")
	}
	defer rows.Close() //nolint:errcheck

	var messages []*domain.Message
	for rows.Next() {
		var message domain.Message

		err := rows.Scan(
			&message.ID,
			&message.Topic,
			&message.Payload,
			&message.CreatedAt,
			&message.PublishedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox message")
		}

		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox messages")
	}

	return messages, nil
}

// MarkPublished records the publish time. A message that is already published keeps its
// first publish time and the call still succeeds.
func (r *PostgreSQLOutboxRepository) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET published_at = COALESCE(published_at, $1)
			  WHERE id = $2`

	result, err := querier.ExecContext(ctx, query, publishedAt, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox message as published")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/allisson/identity/internal/database"
	apperrors "github.com/allisson/identity/internal/errors"
	"github.com/allisson/identity/internal/outbox/domain"
)

// MySQLOutboxRepository handles outbox message persistence for MySQL
type MySQLOutboxRepository struct {
	db *sql.DB
}

// NewMySQLOutboxRepository creates a new MySQLOutboxRepository
func NewMySQLOutboxRepository(db *sql.DB) *MySQLOutboxRepository {
	return &MySQLOutboxRepository{
		db: db,
	}
}

// Create inserts a new outbox message and sets message.ID from the AUTO_INCREMENT column
func (r *MySQLOutboxRepository) Create(ctx context.Context, message *domain.Message) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_messages (topic, payload, created_at, published_at)
			  VALUES (?, ?, ?, ?)`

	result, err := querier.ExecContext(
		ctx,
		query,
		message.Topic,
		message.Payload,
		message.CreatedAt,
		message.PublishedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox message")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return apperrors.Wrap(err, "failed to get outbox message id")
	}
	message.ID = id
	return nil
}

// ListUnpublished retrieves up to limit unpublished messages in id order, skipping rows
// locked by another relay.
func (r *MySQLOutboxRepository) ListUnpublished(ctx context.Context, limit int) ([]*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, topic, payload, created_at, published_at
			  FROM outbox_messages
			  WHERE published_at IS NULL
			  ORDER BY id ASC
			  LIMIT ?
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

// MarkPublished records the publish time, keeping the first one on repeated calls.
func (r *MySQLOutboxRepository) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET published_at = COALESCE(published_at, ?)
			  WHERE id = ?`

	result, err := querier.ExecContext(ctx, query, publishedAt, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox message as published")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if rows > 0 {
		return nil
	}

	// MySQL counts changed rows only, so an already published message reports zero.
	var exists int
	err = querier.QueryRowContext(ctx, `SELECT 1 FROM outbox_messages WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrMessageNotFound
		}
		return apperrors.Wrap(err, "failed to check outbox message")
	}
	return nil
}

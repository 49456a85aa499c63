package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"secure-relay/internal/domain"
)

const messageColumns = `id, sender, body, kind, timestamp, reply_to, size`

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	db      *sql.DB
	tx      *TxManager
	dialect Dialect
}

// NewMessageRepository creates a message repository for the given dialect
func NewMessageRepository(db *sql.DB, dialect Dialect) *MessageRepository {
	return &MessageRepository{db: db, tx: NewTxManager(db), dialect: dialect}
}

// InsertAndEvict inserts the message and drops every message up to
// evictThrough in one transaction
func (r *MessageRepository) InsertAndEvict(ctx context.Context, msg *domain.Message, evictThrough int64) error {
	defer observe("insert", "messages", time.Now())

	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		if evictThrough > 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id <= $1`, evictThrough); err != nil {
				return fmt.Errorf("failed to evict messages: %w", err)
			}
		}

		var replyTo sql.NullInt64
		if msg.ReplyTo != nil {
			replyTo = sql.NullInt64{Int64: *msg.ReplyTo, Valid: true}
		}

		err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (sender, body, kind, timestamp, reply_to, size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
			msg.Sender,
			msg.Body,
			string(msg.Kind),
			msg.Timestamp,
			replyTo,
			msg.Size,
		).Scan(&msg.ID)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	defer observe("select", "messages", time.Now())

	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by id: %w", err)
	}
	return msg, nil
}

// GetRecent retrieves the newest messages, ordered oldest first
func (r *MessageRepository) GetRecent(ctx context.Context, limit int) ([]*domain.Message, error) {
	defer observe("select", "messages", time.Now())

	messages, err := r.query(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}

	// Reverse the slice to get oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) GetPage(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	defer observe("select", "messages", time.Now())

	return r.query(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY id ASC LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *MessageRepository) GetBefore(ctx context.Context, before float64, limit int) ([]*domain.Message, error) {
	defer observe("select", "messages", time.Now())

	return r.query(ctx, `SELECT `+messageColumns+` FROM messages WHERE timestamp < $1 ORDER BY timestamp DESC, id DESC LIMIT $2`, before, limit)
}

func (r *MessageRepository) ListSizes(ctx context.Context) ([]domain.MessageSize, error) {
	defer observe("select", "messages", time.Now())

	rows, err := r.db.QueryContext(ctx, `SELECT id, size FROM messages ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query message sizes: %w", err)
	}
	defer rows.Close()

	sizes := make([]domain.MessageSize, 0)
	for rows.Next() {
		var s domain.MessageSize
		if err := rows.Scan(&s.ID, &s.Size); err != nil {
			return nil, fmt.Errorf("failed to scan message size: %w", err)
		}
		sizes = append(sizes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message sizes: %w", err)
	}
	return sizes, nil
}

// LastID returns the highest id ever assigned, including deleted rows
func (r *MessageRepository) LastID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.QueryRowContext(ctx, lastIDQuery(r.dialect)).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read message sequence: %w", err)
	}
	return id, nil
}

func (r *MessageRepository) DeleteThrough(ctx context.Context, id int64) error {
	defer observe("delete", "messages", time.Now())

	if _, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id <= $1`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

func (r *MessageRepository) DeleteAll(ctx context.Context) error {
	defer observe("delete", "messages", time.Now())

	if _, err := r.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

func (r *MessageRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	msg := &domain.Message{}
	var kind string
	var replyTo sql.NullInt64
	err := row.Scan(
		&msg.ID,
		&msg.Sender,
		&msg.Body,
		&kind,
		&msg.Timestamp,
		&replyTo,
		&msg.Size,
	)
	if err != nil {
		return nil, err
	}
	msg.Kind = domain.Kind(kind)
	if replyTo.Valid {
		v := replyTo.Int64
		msg.ReplyTo = &v
	}
	return msg, nil
}

package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"secure-relay/internal/domain"
)

type SessionRepository struct {
	db                *sql.DB
	createStmt        *sql.Stmt
	getByTokenStmt    *sql.Stmt
	deleteStmt        *sql.Stmt
	deleteExpiredStmt *sql.Stmt
}

// NewSessionRepository creates a new SessionRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewSessionRepository(db *sql.DB) (*SessionRepository, error) {
	repo := &SessionRepository{db: db}

	var err error
	repo.createStmt, err = db.Prepare(`
		INSERT INTO sessions (identity, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	repo.getByTokenStmt, err = db.Prepare(`
		SELECT id, identity, token, expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > $2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByToken statement: %w", err)
	}

	repo.deleteStmt, err = db.Prepare(`DELETE FROM sessions WHERE token = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	repo.deleteExpiredStmt, err = db.Prepare(`DELETE FROM sessions WHERE expires_at <= $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deleteExpired statement: %w", err)
	}

	return repo, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	defer observe("insert", "sessions", time.Now())

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	err := r.createStmt.QueryRowContext(ctx,
		session.Identity,
		session.Token,
		session.ExpiresAt.Unix(),
		session.CreatedAt.Unix(),
	).Scan(&session.ID)
	if IsUniqueViolation(err, "sessions_token_key") {
		return fmt.Errorf("%w: session token already issued", domain.ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	defer observe("select", "sessions", time.Now())

	session := &domain.Session{}
	var expiresAt, createdAt int64
	err := r.getByTokenStmt.QueryRowContext(ctx, token, time.Now().Unix()).Scan(
		&session.ID,
		&session.Identity,
		&session.Token,
		&expiresAt,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}
	session.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	session.CreatedAt = time.Unix(createdAt, 0).UTC()
	return session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	defer observe("delete", "sessions", time.Now())

	_, err := r.deleteStmt.ExecContext(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	defer observe("delete", "sessions", time.Now())

	result, err := r.deleteExpiredStmt.ExecContext(ctx, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

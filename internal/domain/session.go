package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned for unknown and expired tokens alike.
var ErrSessionNotFound = errors.New("session not found")

// Session represents a logged-in participant
type Session struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

package memory

import (
	"context"
	"sync"
	"time"

	"secure-relay/internal/domain"
)

type SessionRepository struct {
	mu      sync.RWMutex
	byToken map[string]domain.Session
	nextID  int64
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{byToken: make(map[string]domain.Session)}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	session.ID = r.nextID
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	r.byToken[session.Token] = *session
	return nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byToken[token]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byToken, token)
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var n int64
	for token, s := range r.byToken {
		if !s.ExpiresAt.After(now) {
			delete(r.byToken, token)
			n++
		}
	}
	return n, nil
}

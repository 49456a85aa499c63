// Package testutil provides shared test utilities, mocks, and fixtures
// for the relay's packages.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"secure-relay/internal/domain"
)

// ErrMockFailure is returned by mocks configured to fail.
var ErrMockFailure = errors.New("mock: forced failure")

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc        func(ctx context.Context, session *domain.Session) error
	GetByTokenFunc    func(ctx context.Context, token string) (*domain.Session, error)
	DeleteFunc        func(ctx context.Context, token string) error
	DeleteExpiredFunc func(ctx context.Context) (int64, error)

	// In-memory storage
	Sessions map[string]*domain.Session
}

func NewMockSessionRepository(sessions ...*domain.Session) *MockSessionRepository {
	m := &MockSessionRepository{Sessions: make(map[string]*domain.Session)}
	for _, s := range sessions {
		m.Sessions[s.Token] = s
	}
	return m
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[session.Token] = session
	return nil
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.Sessions[token]
	if !ok || !session.ExpiresAt.After(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := time.Now()
	for token, session := range m.Sessions {
		if !session.ExpiresAt.After(now) {
			delete(m.Sessions, token)
			count++
		}
	}
	return count, nil
}

// MockSubscriptionRepository implements domain.SubscriptionRepository and
// records every call.
type MockSubscriptionRepository struct {
	mu sync.Mutex

	UpsertFunc           func(ctx context.Context, sub *domain.Subscription) error
	DeleteByEndpointFunc func(ctx context.Context, endpoint string) error

	Subscriptions map[string]*domain.Subscription
	Deleted       []string
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{Subscriptions: make(map[string]*domain.Subscription)}
}

func (m *MockSubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *sub
	m.Subscriptions[sub.Endpoint] = &stored
	return nil
}

func (m *MockSubscriptionRepository) GetByIdentity(_ context.Context, identity string) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Subscription
	for _, s := range m.Subscriptions {
		if s.Identity == identity {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if m.DeleteByEndpointFunc != nil {
		return m.DeleteByEndpointFunc(ctx, endpoint)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Subscriptions, endpoint)
	m.Deleted = append(m.Deleted, endpoint)
	return nil
}

// MockPinger reports a fixed health result.
type MockPinger struct {
	Err error
}

func (m *MockPinger) Ping(context.Context) error { return m.Err }

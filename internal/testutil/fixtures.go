package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"secure-relay/internal/domain"
)

// TestPassword is the password behind every roster hash built by NewTestRoster.
const TestPassword = "correct horse battery"

var idCounter atomic.Int64

func nextID() int64 {
	return idCounter.Add(1)
}

// NewTestRoster builds a roster whose participants all share TestPassword.
// A name of the form "bob=42" also assigns a Telegram chat id.
func NewTestRoster(t testing.TB, room string, names ...string) *domain.Roster {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test password: %v", err)
	}

	roster := &domain.Roster{Room: room}
	for _, n := range names {
		p := domain.Participant{Name: n, PasswordHash: string(hash)}
		for i := 0; i < len(n); i++ {
			if n[i] == '=' {
				p.Name, p.TelegramChatID = n[:i], n[i+1:]
				break
			}
		}
		roster.Participants = append(roster.Participants, p)
	}
	return roster
}

// SessionOptions allows customizing session fixture creation
type SessionOptions struct {
	Identity  string
	Token     string
	ExpiresAt time.Time
}

// NewTestSession creates a test session with sensible defaults
func NewTestSession(opts ...func(*SessionOptions)) *domain.Session {
	id := nextID()
	o := &SessionOptions{
		Identity:  "alice",
		Token:     fmt.Sprintf("token-%d", id),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &domain.Session{
		ID:        id,
		Identity:  o.Identity,
		Token:     o.Token,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: time.Now(),
	}
}

func WithToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.Token = token }
}

func WithIdentity(identity string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.Identity = identity }
}

// WithExpired creates a session that expired an hour ago
func WithExpired() func(*SessionOptions) {
	return func(o *SessionOptions) { o.ExpiresAt = time.Now().Add(-time.Hour) }
}

// NewTestSubscription creates a push subscription with unique endpoint.
func NewTestSubscription(identity string) *domain.Subscription {
	return &domain.Subscription{
		Identity:  identity,
		Endpoint:  fmt.Sprintf("https://push.example/sub/%d", nextID()),
		P256dh:    "BPk3-test-p256dh",
		Auth:      "test-auth",
		UserAgent: "test-agent",
	}
}

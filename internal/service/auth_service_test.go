package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"secure-relay/internal/domain"
	"secure-relay/internal/repository/memory"
)

func testRoster(t *testing.T) *domain.Roster {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.Roster{
		Room: testRoom,
		Participants: []domain.Participant{
			{Name: "alice", PasswordHash: string(hash), TelegramChatID: "100"},
			{Name: "bob", PasswordHash: string(hash)},
		},
	}
}

type failingSessionRepo struct {
	*memory.SessionRepository
	err error
}

func (r *failingSessionRepo) Create(context.Context, *domain.Session) error { return r.err }

func TestAuthService_Login(t *testing.T) {
	roster := testRoster(t)

	tests := []struct {
		name     string
		user     string
		password string
		wantErr  error
	}{
		{"valid_credentials", "alice", "correct horse", nil},
		{"wrong_password", "alice", "battery staple", domain.ErrInvalidCredentials},
		{"unknown_participant", "mallory", "correct horse", domain.ErrInvalidCredentials},
		{"empty_password", "alice", "", domain.ErrInvalidCredentials},
		{"empty_name", "", "correct horse", domain.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(roster, memory.NewSessionRepository(), time.Hour)

			session, err := svc.Login(context.Background(), tt.user, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, session)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.user, session.Identity)
			assert.NotEmpty(t, session.Token)
			assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
		})
	}
}

func TestAuthService_LoginRepositoryError(t *testing.T) {
	boom := errors.New("database unavailable")
	svc := NewAuthService(testRoster(t), &failingSessionRepo{SessionRepository: memory.NewSessionRepository(), err: boom}, 0)

	_, err := svc.Login(context.Background(), "alice", "correct horse")
	assert.ErrorIs(t, err, boom)
}

func TestAuthService_ValidateAndLogout(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(testRoster(t), memory.NewSessionRepository(), time.Hour)

	session, err := svc.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	got, err := svc.ValidateSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Identity)

	require.NoError(t, svc.Logout(ctx, session.Token))

	_, err = svc.ValidateSession(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.ValidateSession(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthService_ExpiredSessions(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(testRoster(t), memory.NewSessionRepository(), time.Hour)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	stale, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	svc.now = time.Now
	fresh, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	_, err = svc.ValidateSession(ctx, stale.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = svc.ValidateSession(ctx, fresh.Token)
	assert.NoError(t, err)
}

func TestAuthService_RemovedParticipantLosesSession(t *testing.T) {
	ctx := context.Background()
	roster := testRoster(t)
	svc := NewAuthService(roster, memory.NewSessionRepository(), time.Hour)

	session, err := svc.Login(ctx, "bob", "correct horse")
	require.NoError(t, err)

	roster.Participants = roster.Participants[:1]

	_, err = svc.ValidateSession(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

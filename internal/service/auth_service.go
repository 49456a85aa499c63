package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"secure-relay/internal/domain"
)

const DefaultSessionTTL = 24 * time.Hour

// AuthService authenticates roster participants and manages their sessions.
type AuthService struct {
	roster      *domain.Roster
	sessionRepo domain.SessionRepository
	ttl         time.Duration
	now         func() time.Time
}

func NewAuthService(roster *domain.Roster, sessionRepo domain.SessionRepository, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		roster:      roster,
		sessionRepo: sessionRepo,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (s *AuthService) Login(ctx context.Context, name, password string) (*domain.Session, error) {
	if name == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	participant, ok := s.roster.Lookup(name)
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(participant.PasswordHash), []byte(password),
	); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	session := &domain.Session{
		Identity:  participant.Name,
		Token:     uuid.New().String(),
		ExpiresAt: s.now().Add(s.ttl),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessionRepo.Delete(ctx, token)
}

// ValidateSession resolves a token to a live session whose identity is still
// on the roster.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	session, err := s.sessionRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}

	if _, ok := s.roster.Lookup(session.Identity); !ok {
		return nil, domain.ErrUnauthorized
	}
	return session, nil
}

// CleanupExpired deletes sessions past their expiry.
func (s *AuthService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessionRepo.DeleteExpired(ctx)
}

package middleware

import (
	"context"
	"net/http"

	"secure-relay/internal/domain"
	"secure-relay/internal/observability"
)

type contextKey string

const (
	IdentityKey contextKey = "identity"
	SessionKey  contextKey = "session"

	// SessionCookie carries the opaque session token.
	SessionCookie = "session_id"
)

// SessionValidator resolves a session token to a live session.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*domain.Session, error)
}

func Auth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			session, err := sessions.ValidateSession(r.Context(), cookie.Value)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			ctx := WithIdentity(r.Context(), session.Identity)
			ctx = WithSession(ctx, session)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetIdentity(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(IdentityKey).(string)
	return identity, ok && identity != ""
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.Session)
	return session, ok
}

// WithIdentity stores the participant for handlers and tags the request's
// log attributes with it.
func WithIdentity(ctx context.Context, identity string) context.Context {
	ctx = observability.WithIdentity(ctx, identity)
	return context.WithValue(ctx, IdentityKey, identity)
}

func WithSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"secure-relay/internal/domain"
	"secure-relay/internal/middleware"
)

// Authenticator issues and revokes sessions.
type Authenticator interface {
	Login(ctx context.Context, name, password string) (*domain.Session, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth         Authenticator
	secureCookie bool
	now          func() time.Time
}

// NewAuthHandler creates a new authentication handler. secureCookie marks
// the session cookie HTTPS-only.
func NewAuthHandler(auth Authenticator, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		secureCookie: secureCookie,
		now:          time.Now,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse describes the authenticated participant
type UserResponse struct {
	Username        string `json:"username"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// LoginResponse represents login response
type LoginResponse struct {
	Success   bool         `json:"success"`
	User      UserResponse `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Login handles participant login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(session.ExpiresAt.Sub(h.now()).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		User:      UserResponse{Username: session.Identity, IsAuthenticated: true},
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout handles participant logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Session not found")
		return
	}

	if err := h.auth.Logout(r.Context(), session.Token); err != nil {
		writeDomainError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me reports the participant behind the session cookie
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Username: identity, IsAuthenticated: true})
}

//go:build e2e
// +build e2e

package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-relay/internal/handler"
)

func TestAuth_Login(t *testing.T) {
	t.Run("valid credentials create a persisted session", func(t *testing.T) {
		client := NewTestClient(t)

		resp, err := client.Login("alice", testPassword)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "alice", resp.User.Username)
		assert.True(t, resp.User.IsAuthenticated)
		assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

		var count int
		require.NoError(t, testDB.QueryRow(`SELECT COUNT(*) FROM sessions WHERE identity = $1`, "alice").Scan(&count))
		assert.GreaterOrEqual(t, count, 1)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		client := NewTestClient(t)

		_, err := client.Login("alice", "not the password")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("unknown participant is rejected", func(t *testing.T) {
		client := NewTestClient(t)

		_, err := client.Login("mallory", testPassword)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("missing password fails request validation", func(t *testing.T) {
		client := NewTestClient(t)

		resp, err := client.PostJSON("/api/v1/auth/login", map[string]string{"username": "alice"})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAuth_MeAndLogout(t *testing.T) {
	client := LoginAs(t, "bob")

	var me handler.UserResponse
	client.GetJSON("/api/v1/auth/me", http.StatusOK, &me)
	assert.Equal(t, "bob", me.Username)
	assert.True(t, me.IsAuthenticated)

	require.NoError(t, client.Logout())

	client.GetJSON("/api/v1/auth/me", http.StatusUnauthorized, nil)
	client.GetJSON("/api/v1/messages/recent", http.StatusUnauthorized, nil)
}

func TestAuth_ProtectedRoutesRequireSession(t *testing.T) {
	client := NewTestClient(t)

	for _, path := range []string{"/api/v1/auth/me", "/api/v1/status", "/api/v1/messages/recent"} {
		client.GetJSON(path, http.StatusUnauthorized, nil)
	}

	_, _, err := client.ConnectWebSocket()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAuth_SessionSurvivesTokenLookupAfterReload(t *testing.T) {
	client := LoginAs(t, "carol")

	// A second client reusing the cookie behaves like a reloaded page.
	second := NewTestClient(t)
	for _, c := range client.Jar.Cookies(mustParseURL(t, baseURL)) {
		second.Jar.SetCookies(mustParseURL(t, baseURL), []*http.Cookie{c})
	}

	var me handler.UserResponse
	second.GetJSON("/api/v1/auth/me", http.StatusOK, &me)
	assert.Equal(t, "carol", me.Username)
}

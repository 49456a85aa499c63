//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"secure-relay/internal/domain"
	"secure-relay/internal/handler"
)

const eventTimeout = 5 * time.Second

// TestClient wraps http.Client with a cookie jar for a single participant.
type TestClient struct {
	*http.Client
	t        *testing.T
	username string
}

// NewTestClient creates a new test client with cookie jar
func NewTestClient(t *testing.T) *TestClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &TestClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		t: t,
	}
}

// LoginAs creates a client already logged in as username.
func LoginAs(t *testing.T, username string) *TestClient {
	t.Helper()
	tc := NewTestClient(t)
	resp, err := tc.Login(username, testPassword)
	require.NoError(t, err)
	require.True(t, resp.Success)
	return tc
}

// Login posts credentials; the session cookie lands in the jar.
func (tc *TestClient) Login(username, password string) (*handler.LoginResponse, error) {
	resp, err := tc.PostJSON("/api/v1/auth/login", handler.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("login failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result handler.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	tc.username = result.User.Username
	return &result, nil
}

// Logout ends the current session
func (tc *TestClient) Logout() error {
	resp, err := tc.PostJSON("/api/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// PostJSON sends a JSON body to path.
func (tc *TestClient) PostJSON(path string, body any) (*http.Response, error) {
	return tc.sendJSON(http.MethodPost, path, body)
}

// DeleteJSON sends a DELETE with an optional JSON body.
func (tc *TestClient) DeleteJSON(path string, body any) (*http.Response, error) {
	return tc.sendJSON(http.MethodDelete, path, body)
}

func (tc *TestClient) sendJSON(method, path string, body any) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return tc.Do(req)
}

// GetJSON fetches path, asserts the status and decodes into out when non-nil.
func (tc *TestClient) GetJSON(path string, wantStatus int, out any) {
	tc.t.Helper()
	resp, err := tc.Get(baseURL + path)
	require.NoError(tc.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(tc.t, err)
	require.Equal(tc.t, wantStatus, resp.StatusCode, "GET %s: %s", path, string(body))
	if out != nil {
		require.NoError(tc.t, json.Unmarshal(body, out))
	}
}

// WSClient is one participant's websocket connection.
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
}

// ConnectWebSocket dials /ws with the client's session cookie and returns
// the connection along with the replay batch it receives first.
func (tc *TestClient) ConnectWebSocket() (*WSClient, []*domain.Message, error) {
	dialer := websocket.Dialer{
		Jar:              tc.Jar,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.Dial(wsURL+"/ws", nil)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	ws := &WSClient{t: tc.t, conn: conn}
	replay, err := ws.read()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if replay.Type != domain.EventRecentMessages {
		conn.Close()
		return nil, nil, fmt.Errorf("expected %s first, got %s", domain.EventRecentMessages, replay.Type)
	}
	return ws, replay.Messages, nil
}

// MustConnect connects and registers cleanup.
func (tc *TestClient) MustConnect() (*WSClient, []*domain.Message) {
	tc.t.Helper()
	ws, replay, err := tc.ConnectWebSocket()
	require.NoError(tc.t, err)
	tc.t.Cleanup(ws.Close)
	return ws, replay
}

func (w *WSClient) Close() {
	_ = w.conn.Close()
}

// Send writes one client event.
func (w *WSClient) Send(ev domain.ClientEvent) {
	w.t.Helper()
	require.NoError(w.t, w.conn.WriteJSON(ev))
}

// SendChat sends a text chat message.
func (w *WSClient) SendChat(body string) {
	w.t.Helper()
	w.Send(domain.ClientEvent{Type: domain.EventChatMessage, Body: body})
}

func (w *WSClient) read() (domain.ServerEvent, error) {
	var ev domain.ServerEvent
	if err := w.conn.SetReadDeadline(time.Now().Add(eventTimeout)); err != nil {
		return ev, err
	}
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode server event: %w", err)
	}
	return ev, nil
}

// WaitFor reads events until one of type eventType arrives. Other events are
// discarded.
func (w *WSClient) WaitFor(eventType string) domain.ServerEvent {
	w.t.Helper()
	for {
		ev, err := w.read()
		require.NoError(w.t, err, "waiting for %s", eventType)
		if ev.Type == eventType {
			return ev
		}
	}
}

// WaitForChat waits for the chat message with the given body.
func (w *WSClient) WaitForChat(body string) domain.ServerEvent {
	w.t.Helper()
	for {
		ev := w.WaitFor(domain.EventChatMessage)
		if ev.Message != nil && ev.Message.Body == body {
			return ev
		}
	}
}

// WaitForUser waits for an event of eventType attributed to user. Presence
// events of earlier connections may still be in flight.
func (w *WSClient) WaitForUser(eventType, user string) domain.ServerEvent {
	w.t.Helper()
	for {
		ev := w.WaitFor(eventType)
		if ev.User == user {
			return ev
		}
	}
}

// ExpectSilence asserts that no event of eventType arrives within d. The
// read deadline it leaves behind makes the connection unreadable afterwards.
func (w *WSClient) ExpectSilence(eventType string, d time.Duration) {
	w.t.Helper()
	require.NoError(w.t, w.conn.SetReadDeadline(time.Now().Add(d)))
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev domain.ServerEvent
		require.NoError(w.t, json.Unmarshal(data, &ev))
		require.NotEqual(w.t, eventType, ev.Type, "unexpected %s event", eventType)
	}
}

// waitOnline blocks until identity has a registered connection.
func waitOnline(t *testing.T, identity string, online bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return testRegistry.IsOnline(testRoom, identity) == online
	}, eventTimeout, 10*time.Millisecond)
}

// resetHistory clears stored messages between tests.
func resetHistory(t *testing.T) {
	t.Helper()
	require.NoError(t, testMessages.ClearAll(t.Context()))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

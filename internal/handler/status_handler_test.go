package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"secure-relay/internal/domain"
	"secure-relay/internal/middleware"
	"secure-relay/internal/testutil"
)

type fixedStats domain.StoreStats

func (f fixedStats) Stats() domain.StoreStats { return domain.StoreStats(f) }

type fixedMembers []string

func (f fixedMembers) Members() []string { return f }

func TestStatusHandler_Status(t *testing.T) {
	h := NewStatusHandler(
		fixedStats{Count: 3, TotalBytes: 1536, CapacityBytes: 500 << 20},
		fixedMembers{"alice", "bob"},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), "alice"))
	w := httptest.NewRecorder()
	h.Status(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[StatusResponse](t, w)
	assert.Equal(t, "alice", resp.User)
	assert.Equal(t, []string{"alice", "bob"}, resp.ConnectedUsers)
	assert.Equal(t, 3, resp.MessageStore.Count)
	assert.Equal(t, int64(1536), resp.MessageStore.TotalBytes)
	assert.Equal(t, "1.5 KiB", resp.MessageStore.Size)
	assert.Equal(t, "500 MiB", resp.MessageStore.Capacity)
}

func TestStatusHandler_NoMembers(t *testing.T) {
	h := NewStatusHandler(fixedStats{}, fixedMembers(nil))

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"connected_users":[]`)
}

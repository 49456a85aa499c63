package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-relay/internal/domain"
	"secure-relay/internal/middleware"
	"secure-relay/internal/repository/memory"
	"secure-relay/internal/store"
	"secure-relay/internal/testutil"
)

type recordingClearer struct {
	calls []string
	err   error
}

func (c *recordingClearer) ClearHistory(_ context.Context, identity string) error {
	c.calls = append(c.calls, identity)
	return c.err
}

// seededStore holds n text messages stamped 1.0, 2.0, ... n.
func seededStore(t *testing.T, n int) *store.MessageStore {
	t.Helper()
	st := store.New(memory.NewMessageRepository(), 1<<20)
	for i := 1; i <= n; i++ {
		_, err := st.Append(context.Background(), "alice", fmt.Sprintf("m%d", i), domain.KindText, float64(i), nil)
		require.NoError(t, err)
	}
	return st
}

func messageRouter(h *MessageHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithIdentity(req.Context(), "alice")))
		})
	})
	r.Get("/messages/recent", h.Recent)
	r.Get("/messages/paginated", h.Paginated)
	r.Get("/messages/before", h.Before)
	r.Get("/messages/{id}", h.ByID)
	r.Delete("/messages", h.Clear)
	return r
}

func bodies(msgs []*domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestMessageHandler_Recent(t *testing.T) {
	router := messageRouter(NewMessageHandler(seededStore(t, 5), &recordingClearer{}))

	w := serve(router, http.MethodGet, "/messages/recent?limit=3")
	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[MessagesResponse](t, w)
	assert.Equal(t, []string{"m3", "m4", "m5"}, bodies(resp.Messages))

	w = serve(router, http.MethodGet, "/messages/recent?limit=abc")
	testutil.AssertJSONError(t, w, http.StatusBadRequest, "Invalid limit parameter")
}

// limitRecorder records the page size each query reaches the store with.
type limitRecorder struct {
	*store.MessageStore
	limits []int
}

func (l *limitRecorder) Recent(ctx context.Context, limit int) ([]*domain.Message, error) {
	l.limits = append(l.limits, limit)
	return l.MessageStore.Recent(ctx, limit)
}

func (l *limitRecorder) Paginated(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	l.limits = append(l.limits, limit)
	return l.MessageStore.Paginated(ctx, limit, offset)
}

func (l *limitRecorder) Before(ctx context.Context, before float64, limit int) ([]*domain.Message, error) {
	l.limits = append(l.limits, limit)
	return l.MessageStore.Before(ctx, before, limit)
}

func TestMessageHandler_LimitDefaultsAndCap(t *testing.T) {
	tests := []struct {
		target string
		want   int
	}{
		{"/messages/recent", defaultPageLimit},
		{"/messages/recent?limit=0", defaultPageLimit},
		{"/messages/recent?limit=-4", defaultPageLimit},
		{"/messages/recent?limit=7", 7},
		{"/messages/recent?limit=100000", maxPageLimit},
		{"/messages/paginated?limit=100000", maxPageLimit},
		{"/messages/before?before=3", defaultPageLimit},
		{"/messages/before?before=3&limit=100000", maxPageLimit},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := &limitRecorder{MessageStore: seededStore(t, 2)}
			router := messageRouter(NewMessageHandler(rec, &recordingClearer{}))

			w := serve(router, http.MethodGet, tt.target)
			testutil.AssertStatusCode(t, w, http.StatusOK)
			assert.Equal(t, []int{tt.want}, rec.limits)
		})
	}
}

func TestMessageHandler_RecentEmptyStoreIsEmptyList(t *testing.T) {
	router := messageRouter(NewMessageHandler(seededStore(t, 0), &recordingClearer{}))

	w := serve(router, http.MethodGet, "/messages/recent")
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.JSONEq(t, `{"messages":[]}`, w.Body.String())
}

func TestMessageHandler_Paginated(t *testing.T) {
	router := messageRouter(NewMessageHandler(seededStore(t, 5), &recordingClearer{}))

	w := serve(router, http.MethodGet, "/messages/paginated?limit=2&offset=1")
	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[MessagesResponse](t, w)
	assert.Equal(t, []string{"m2", "m3"}, bodies(resp.Messages))
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 1, resp.Offset)
}

func TestMessageHandler_Before(t *testing.T) {
	router := messageRouter(NewMessageHandler(seededStore(t, 5), &recordingClearer{}))

	tests := []struct {
		name        string
		target      string
		wantBodies  []string
		wantHasMore bool
	}{
		{"full page", "/messages/before?before=5&limit=2", []string{"m4", "m3"}, true},
		{"short page", "/messages/before?before=3&limit=5", []string{"m2", "m1"}, false},
		{"strictly older", "/messages/before?before=1&limit=5", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, http.MethodGet, tt.target)
			testutil.AssertStatusCode(t, w, http.StatusOK)
			resp := testutil.DecodeJSON[MessagesResponse](t, w)
			assert.Equal(t, tt.wantBodies, bodies(resp.Messages))
			require.NotNil(t, resp.HasMore)
			assert.Equal(t, tt.wantHasMore, *resp.HasMore)
		})
	}
}

func TestMessageHandler_BeforeValidation(t *testing.T) {
	router := messageRouter(NewMessageHandler(seededStore(t, 1), &recordingClearer{}))

	testutil.AssertJSONError(t, serve(router, http.MethodGet, "/messages/before"), http.StatusBadRequest, "Missing before parameter")
	testutil.AssertJSONError(t, serve(router, http.MethodGet, "/messages/before?before=yesterday"), http.StatusBadRequest, "Invalid before parameter")
	testutil.AssertJSONError(t, serve(router, http.MethodGet, "/messages/before?before=2&limit=x"), http.StatusBadRequest, "Invalid limit parameter")
}

func TestMessageHandler_ByID(t *testing.T) {
	router := messageRouter(NewMessageHandler(seededStore(t, 2), &recordingClearer{}))

	w := serve(router, http.MethodGet, "/messages/2")
	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[map[string]*domain.Message](t, w)
	require.NotNil(t, resp["message"])
	assert.Equal(t, "m2", resp["message"].Body)

	testutil.AssertJSONError(t, serve(router, http.MethodGet, "/messages/99"), http.StatusNotFound, "Message not found")
	testutil.AssertJSONError(t, serve(router, http.MethodGet, "/messages/0"), http.StatusBadRequest, "Invalid message id")
}

func TestMessageHandler_Clear(t *testing.T) {
	clearer := &recordingClearer{}
	router := messageRouter(NewMessageHandler(seededStore(t, 1), clearer))

	w := serve(router, http.MethodDelete, "/messages")
	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, []string{"alice"}, clearer.calls)

	clearer.err = fmt.Errorf("%w: disk gone", domain.ErrStorage)
	w = serve(router, http.MethodDelete, "/messages")
	testutil.AssertJSONError(t, w, http.StatusInternalServerError, "Internal server error")
	assert.NotContains(t, w.Body.String(), "disk gone")
}

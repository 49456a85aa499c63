package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"secure-relay/internal/domain"
	"secure-relay/internal/middleware"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// MessageReader is the read side of the message store.
type MessageReader interface {
	Recent(ctx context.Context, limit int) ([]*domain.Message, error)
	Paginated(ctx context.Context, limit, offset int) ([]*domain.Message, error)
	Before(ctx context.Context, before float64, limit int) ([]*domain.Message, error)
	ByID(ctx context.Context, id int64) (*domain.Message, error)
}

// HistoryClearer wipes the history and tells the room.
type HistoryClearer interface {
	ClearHistory(ctx context.Context, identity string) error
}

// MessageHandler serves the history API
type MessageHandler struct {
	messages MessageReader
	clearer  HistoryClearer
}

func NewMessageHandler(messages MessageReader, clearer HistoryClearer) *MessageHandler {
	return &MessageHandler{messages: messages, clearer: clearer}
}

// MessagesResponse wraps a list of messages
type MessagesResponse struct {
	Messages []*domain.Message `json:"messages"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
	HasMore  *bool             `json:"has_more,omitempty"`
}

// Recent returns the newest messages, oldest first
func (h *MessageHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	msgs, err := h.messages.Recent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: nonNil(msgs)})
}

// Paginated returns history in id order from an offset
func (h *MessageHandler) Paginated(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	msgs, err := h.messages.Paginated(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: nonNil(msgs), Limit: limit, Offset: offset})
}

// Before returns messages strictly older than a timestamp cursor, newest
// first. has_more is set when the page came back full.
func (h *MessageHandler) Before(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing before parameter")
		return
	}
	before, err := strconv.ParseFloat(raw, 64)
	if err != nil || before <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid before parameter")
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	msgs, err := h.messages.Before(r.Context(), before, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	hasMore := len(msgs) == limit
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: nonNil(msgs), HasMore: &hasMore})
}

// ByID returns one message
func (h *MessageHandler) ByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid message id")
		return
	}

	msg, err := h.messages.ByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*domain.Message{"message": msg})
}

// Clear deletes the whole history
func (h *MessageHandler) Clear(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if err := h.clearer.ClearHistory(r.Context(), identity); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Chat history cleared"})
}

// queryInt parses an optional integer query parameter, writing a 400 on
// malformed input.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}

// queryLimit reads the page size. Missing or non-positive values fall back
// to defaultPageLimit and anything above maxPageLimit is capped.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, ok := queryInt(w, r, "limit", defaultPageLimit)
	if !ok {
		return 0, false
	}
	if limit <= 0 {
		return defaultPageLimit, true
	}
	return min(limit, maxPageLimit), true
}

func nonNil(msgs []*domain.Message) []*domain.Message {
	if msgs == nil {
		return []*domain.Message{}
	}
	return msgs
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"secure-relay/internal/domain"
	"secure-relay/internal/middleware"
	"secure-relay/internal/observability"
	ws "secure-relay/internal/websocket"
)

// RoomSession admits connections to the room and handles their events.
type RoomSession interface {
	ws.EventHandler
	Join(ctx context.Context, conn domain.Connection, identity, origin string) error
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	room            RoomSession
	roomName        string
	maxMessageBytes int64
	upgrader        websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. Browser upgrades are
// accepted only from allowedOrigins; "*" accepts any.
func NewWebSocketHandler(room RoomSession, roomName string, allowedOrigins []string, maxMessageBytes int64) *WebSocketHandler {
	h := &WebSocketHandler{
		room:            room,
		roomName:        roomName,
		maxMessageBytes: maxMessageBytes,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
	return h
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		// Same-origin pages are always allowed.
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// HandleConnection upgrades the request, replays recent history and starts
// the connection's pumps
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.String("identity", identity),
			slog.String("error", err.Error()))
		return
	}

	connID := uuid.NewString()
	client := ws.NewClient(context.Background(), conn, connID, identity, h.room, h.maxMessageBytes)
	go client.WritePump()

	ctx := observability.WithConnID(r.Context(), connID)
	if err := h.room.Join(ctx, client, identity, middleware.ClientIP(r)); err != nil {
		observability.FromContext(ctx).Warn("join rejected", slog.String("error", err.Error()))
		client.SendError(err)
		client.Terminate()
		return
	}

	gauge := observability.WebSocketConnectionsActive.WithLabelValues(h.roomName)
	gauge.Inc()
	go func() {
		defer gauge.Dec()
		client.ReadPump()
	}()
}

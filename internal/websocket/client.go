package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"secure-relay/internal/domain"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second // Must be less than pongWait
	eventTimeout = 15 * time.Second
	sendBuffer   = 256

	// Room for JSON framing around the largest allowed message body
	frameOverhead = 4096
)

// EventHandler receives decoded frames from a client
type EventHandler interface {
	HandleEvent(ctx context.Context, connID string, ev domain.ClientEvent) error
	Leave(ctx context.Context, connID string)
}

// Client is one websocket peer. It implements domain.Connection.
type Client struct {
	id        string
	identity  string
	conn      *websocket.Conn
	handler   EventHandler
	readLimit int64

	send chan []byte
	quit chan struct{}

	terminateOnce sync.Once
	writeMu       sync.Mutex
	closed        atomic.Bool
	ctx           context.Context
	ctxCancel     context.CancelFunc
}

// NewClient wraps an upgraded connection. maxBodyBytes bounds the accepted
// frame size.
func NewClient(ctx context.Context, conn *websocket.Conn, id, identity string, handler EventHandler, maxBodyBytes int64) *Client {
	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		id:        id,
		identity:  identity,
		conn:      conn,
		handler:   handler,
		readLimit: maxBodyBytes + frameOverhead,
		send:      make(chan []byte, sendBuffer),
		quit:      make(chan struct{}),
		ctx:       clientCtx,
		ctxCancel: cancel,
	}
}

func (c *Client) ID() string { return c.id }

// Send queues payload without blocking
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Terminate asks the write pump to flush queued frames and close the
// connection. Safe to call more than once and from any goroutine.
func (c *Client) Terminate() {
	c.terminateOnce.Do(func() {
		close(c.quit)
	})
}

// ReadPump decodes frames and hands them to the event handler until the
// connection fails or is terminated
func (c *Client) ReadPump() {
	defer func() {
		c.handler.Leave(context.Background(), c.id)
		c.Terminate()
		c.ctxCancel()
	}()

	c.conn.SetReadLimit(c.readLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("identity", c.identity))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("identity", c.identity))
			}
			return
		}

		var ev domain.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("invalid message format",
				slog.String("error", err.Error()),
				slog.String("identity", c.identity))
			c.SendError(domain.ErrInvalidInput)
			continue
		}

		ctx, cancel := context.WithTimeout(c.ctx, eventTimeout)
		err = c.handler.HandleEvent(ctx, c.id, ev)
		cancel()
		if err != nil {
			slog.Debug("event rejected",
				slog.String("type", ev.Type),
				slog.String("identity", c.identity),
				slog.String("error", err.Error()))
			c.SendError(err)
			if errors.Is(err, domain.ErrBlocked) || errors.Is(err, domain.ErrNotJoined) {
				return
			}
		}
	}
}

// SendError queues an error frame describing err
func (c *Client) SendError(err error) {
	data, mErr := json.Marshal(domain.ServerEvent{Type: domain.EventError, Error: ErrorMessage(err)})
	if mErr != nil {
		slog.Error("failed to marshal error frame", slog.String("error", mErr.Error()))
		return
	}
	c.Send(data)
}

// ErrorMessage maps an error to the text shown to the peer
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, domain.ErrStorage):
		return "message could not be stored"
	case errors.Is(err, domain.ErrBlocked):
		return "access temporarily blocked"
	case errors.Is(err, domain.ErrNotJoined):
		return "connection is not joined"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal error"
	}
}

// WritePump pumps queued frames to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.flush()
			return

		case <-c.ctx.Done():
			c.flush()
			return
		}
	}
}

// flush writes every frame still queued at termination time, then a close
// frame
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			_ = c.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("failed to set write deadline",
			slog.String("error", err.Error()),
			slog.String("identity", c.identity))
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}

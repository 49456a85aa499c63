package websocket

import (
	"context"
	"log/slog"

	"secure-relay/internal/domain"
	"secure-relay/internal/observability"
	"secure-relay/internal/presence"
)

const defaultQueueSize = 1024

// Hub fans deliveries out to connections. A single goroutine drains one FIFO
// queue, so every connection observes deliveries in publish order.
type Hub struct {
	registry *presence.Registry

	// Pending deliveries in publish order
	deliveries chan domain.Delivery

	// Shutdown signal
	done chan struct{}
}

// NewHub creates a hub that resolves room members through registry
func NewHub(registry *presence.Registry, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		registry:   registry,
		deliveries: make(chan domain.Delivery, queueSize),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

// Publish queues a delivery. It blocks while the queue is full and returns
// false once the hub has shut down.
func (h *Hub) Publish(d domain.Delivery) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.deliveries <- d:
		return true
	case <-h.done:
		return false
	}
}

type target struct {
	conn            domain.Connection
	replayedThrough int64
}

func (h *Hub) targets(d domain.Delivery) []target {
	if d.Targets != nil {
		out := make([]target, 0, len(d.Targets))
		for _, c := range d.Targets {
			out = append(out, target{conn: c})
		}
		return out
	}

	entries := h.registry.Connections(d.Room)
	out := make([]target, 0, len(entries))
	for _, e := range entries {
		out = append(out, target{conn: e.Conn, replayedThrough: e.ReplayedThrough})
	}
	return out
}

func (h *Hub) deliver(d domain.Delivery) {
	mode := "inclusive"
	if d.Mode == domain.DeliverExcludeSender {
		mode = "exclusive"
	}

	for _, t := range h.targets(d) {
		if t.conn == nil {
			continue
		}
		if d.Mode == domain.DeliverExcludeSender && t.conn.ID() == d.SenderConn {
			continue
		}
		// Already included in the replay batch sent on join
		if d.MessageID > 0 && d.MessageID <= t.replayedThrough {
			continue
		}

		if !t.conn.Send(d.Payload) {
			// Slow consumer: sever this connection only
			observability.WebSocketSlowConsumers.Inc()
			slog.Warn("connection send buffer full, closing",
				slog.String("conn_id", t.conn.ID()),
				slog.String("room", d.Room))
			t.conn.Terminate()
			continue
		}
		observability.WebSocketMessagesSent.WithLabelValues(d.Room, mode).Inc()

		if d.Terminate {
			t.conn.Terminate()
		}
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for _, e := range h.registry.Drain() {
		if e.Conn != nil {
			e.Conn.Terminate()
		}
		slog.Info("closed client connection",
			slog.String("identity", e.Identity),
			slog.String("room", e.Room))
	}

	slog.Info("hub shutdown complete")
}

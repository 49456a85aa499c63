package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"secure-relay/internal/domain"
	"secure-relay/internal/guard"
	"secure-relay/internal/notify"
	"secure-relay/internal/presence"
	"secure-relay/internal/store"
)

// Broadcaster queues a delivery for the room's connections.
type Broadcaster interface {
	Publish(d domain.Delivery) bool
}

// Escalator decides whether offline participants need to be notified.
type Escalator interface {
	Evaluate(ctx context.Context, n notify.Notification) notify.Result
}

// RelayConfig holds the room name and the limits the relay enforces.
type RelayConfig struct {
	Room              string
	MaxMessageBytes   int64
	ReplayLimit       int
	SelfDestructBlock time.Duration
	PingText          string
}

// Relay coordinates the message store, presence, broadcast and escalation
// for one room.
type Relay struct {
	// mu orders appends with their publication so every member observes
	// chat messages in commit order. Membership and the origin block are
	// re-checked under it, so nothing runs for a connection a self destruct
	// has already severed. It is never held across escalation.
	mu sync.Mutex

	cfg       RelayConfig
	store     *store.MessageStore
	registry  *presence.Registry
	hub       Broadcaster
	guard     guard.Guard
	escalator Escalator
	now       func() time.Time
}

func NewRelay(cfg RelayConfig, st *store.MessageStore, registry *presence.Registry, hub Broadcaster, g guard.Guard, escalator Escalator) *Relay {
	return &Relay{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		hub:       hub,
		guard:     g,
		escalator: escalator,
		now:       time.Now,
	}
}

// Join registers conn and queues the replay batch to it before any live
// delivery can reach it.
func (r *Relay) Join(ctx context.Context, conn domain.Connection, identity, origin string) error {
	if r.guard.IsBlocked(ctx, origin) {
		return domain.ErrBlocked
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.guard.IsBlocked(ctx, origin) {
		return domain.ErrBlocked
	}

	recent, err := r.store.Recent(ctx, r.cfg.ReplayLimit)
	if err != nil {
		return err
	}

	replay, err := json.Marshal(domain.ServerEvent{Type: domain.EventRecentMessages, Messages: recent})
	if err != nil {
		return fmt.Errorf("failed to marshal replay: %w", err)
	}
	if !conn.Send(replay) {
		return fmt.Errorf("connection %s refused replay", conn.ID())
	}

	r.registry.Add(presence.Entry{
		ConnID:          conn.ID(),
		Identity:        identity,
		Room:            r.cfg.Room,
		Origin:          origin,
		Conn:            conn,
		ReplayedThrough: r.store.LastID(),
	})
	r.publish(domain.ServerEvent{Type: domain.EventMemberJoined, User: identity}, domain.Delivery{Mode: domain.DeliverInclusive})

	slog.Info("member joined",
		slog.String("identity", identity),
		slog.String("conn_id", conn.ID()),
		slog.Int("replayed", len(recent)))
	return nil
}

// Leave unregisters the connection. Unknown ids are ignored.
func (r *Relay) Leave(_ context.Context, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.registry.Remove(connID)
	if !ok {
		return
	}
	r.publish(domain.ServerEvent{Type: domain.EventMemberLeft, User: entry.Identity}, domain.Delivery{Mode: domain.DeliverInclusive})

	slog.Info("member left",
		slog.String("identity", entry.Identity),
		slog.String("conn_id", connID))
}

// HandleEvent dispatches one inbound websocket frame.
func (r *Relay) HandleEvent(ctx context.Context, connID string, ev domain.ClientEvent) error {
	entry, ok := r.registry.Get(connID)
	if !ok {
		return domain.ErrNotJoined
	}
	if r.guard.IsBlocked(ctx, entry.Origin) {
		return domain.ErrBlocked
	}

	switch ev.Type {
	case domain.EventChatMessage:
		_, err := r.SendChat(ctx, entry, ev.Body, ev.Kind, ev.ReplyTo)
		return err
	case domain.EventPing:
		return r.Ping(ctx, entry)
	case domain.EventSignal:
		return r.Signal(ctx, entry, ev.Data)
	case domain.EventClearHistory:
		return r.clearFrom(ctx, entry)
	case domain.EventSelfDestruct:
		return r.SelfDestruct(ctx, entry.Origin)
	default:
		return fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidInput, ev.Type)
	}
}

// SendChat stores a message, broadcasts it to the room including the
// sender, then escalates to offline participants.
func (r *Relay) SendChat(ctx context.Context, sender presence.Entry, body, kind string, replyTo *int64) (*domain.Message, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: message body is empty", domain.ErrInvalidInput)
	}
	if int64(len(body)) > r.cfg.MaxMessageBytes {
		return nil, fmt.Errorf("%w: message body exceeds %d bytes", domain.ErrInvalidInput, r.cfg.MaxMessageBytes)
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if err := r.admitted(ctx, sender); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	ts := float64(r.now().UnixNano()) / float64(time.Second)
	msg, err := r.store.Append(ctx, sender.Identity, body, k, ts, replyTo)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	ev := domain.ServerEvent{Type: domain.EventChatMessage, Message: msg}
	if replyTo != nil {
		ev.ReplyContext = r.replyContext(ctx, *replyTo)
	}
	r.publish(ev, domain.Delivery{Mode: domain.DeliverInclusive, SenderConn: sender.ConnID, MessageID: msg.ID})
	r.mu.Unlock()

	r.escalator.Evaluate(ctx, notify.Notification{
		Room:      r.cfg.Room,
		Sender:    sender.Identity,
		Title:     "New message from " + sender.Identity,
		Body:      notificationBody(msg),
		MessageID: msg.ID,
		Kind:      string(msg.Kind),
		Timestamp: msg.Timestamp,
	})
	return msg, nil
}

// replyContext resolves the referenced message. Evicted or cleared targets
// yield no context.
func (r *Relay) replyContext(ctx context.Context, id int64) *domain.Message {
	parent, err := r.store.ByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrMessageNotFound) {
			slog.Warn("failed to resolve reply context",
				slog.Int64("reply_to", id),
				slog.String("error", err.Error()))
		}
		return nil
	}
	return parent
}

func notificationBody(msg *domain.Message) string {
	switch msg.Kind {
	case domain.KindAudio:
		return "sent a voice message"
	case domain.KindVideo:
		return "sent a video message"
	}
	return msg.Body
}

// Ping relays an attention event to everyone but the sender and escalates
// it to offline participants. When nothing could be handed to any channel
// the sender receives a ping_error advisory.
func (r *Relay) Ping(ctx context.Context, sender presence.Entry) error {
	r.mu.Lock()
	if err := r.admitted(ctx, sender); err != nil {
		r.mu.Unlock()
		return err
	}
	r.publish(domain.ServerEvent{Type: domain.EventPing, User: sender.Identity},
		domain.Delivery{Mode: domain.DeliverExcludeSender, SenderConn: sender.ConnID})
	r.mu.Unlock()

	res := r.escalator.Evaluate(ctx, notify.Notification{
		Room:      r.cfg.Room,
		Sender:    sender.Identity,
		Title:     sender.Identity,
		Body:      r.cfg.PingText,
		Kind:      "ping",
		Timestamp: float64(r.now().Unix()),
	})
	if res.Outcome != notify.Escalated || res.Submitted > 0 {
		return nil
	}

	advisory, err := json.Marshal(domain.ServerEvent{
		Type:  domain.EventPingError,
		Error: "no offline channel could reach " + strings.Join(res.Offline, ", "),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ping advisory: %w", err)
	}
	sender.Conn.Send(advisory)
	return nil
}

// Signal forwards opaque call-setup data to everyone but the sender. It is
// never stored or escalated.
func (r *Relay) Signal(ctx context.Context, sender presence.Entry, data json.RawMessage) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: signal data is empty", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.admitted(ctx, sender); err != nil {
		return err
	}
	r.publish(domain.ServerEvent{Type: domain.EventSignal, User: sender.Identity, Data: data},
		domain.Delivery{Mode: domain.DeliverExcludeSender, SenderConn: sender.ConnID})
	return nil
}

// ClearHistory deletes every stored message and tells the room.
func (r *Relay) ClearHistory(ctx context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearLocked(ctx, identity)
}

// clearFrom is ClearHistory on behalf of a live connection.
func (r *Relay) clearFrom(ctx context.Context, sender presence.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.admitted(ctx, sender); err != nil {
		return err
	}
	return r.clearLocked(ctx, sender.Identity)
}

func (r *Relay) clearLocked(ctx context.Context, identity string) error {
	if err := r.store.ClearAll(ctx); err != nil {
		return err
	}
	r.publish(domain.ServerEvent{Type: domain.EventClearHistory, User: identity}, domain.Delivery{Mode: domain.DeliverInclusive})

	slog.Info("history cleared", slog.String("identity", identity))
	return nil
}

// SelfDestruct blocks origin, wipes the history and severs every connection.
// If the history cannot be wiped the block is lifted and nothing else
// happens.
func (r *Relay) SelfDestruct(ctx context.Context, origin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Warn("self destruct triggered", slog.String("origin", origin))

	if err := r.guard.Block(ctx, origin, r.cfg.SelfDestructBlock, "self_destruct"); err != nil {
		return fmt.Errorf("failed to block origin: %w", err)
	}

	if err := r.store.ClearAll(ctx); err != nil {
		if uerr := r.guard.Unblock(ctx, origin); uerr != nil {
			slog.Error("failed to lift block after aborted self destruct",
				slog.String("origin", origin),
				slog.String("error", uerr.Error()))
		}
		return err
	}

	drained := r.registry.Drain()
	targets := make([]domain.Connection, 0, len(drained))
	for _, e := range drained {
		targets = append(targets, e.Conn)
	}
	r.publish(domain.ServerEvent{Type: domain.EventForceDisconnect, Reason: domain.ForceDisconnectReason},
		domain.Delivery{Targets: targets, Terminate: true})

	slog.Warn("self destruct completed",
		slog.String("origin", origin),
		slog.Int("disconnected", len(targets)))
	return nil
}

// Members lists the identities currently connected to the room.
func (r *Relay) Members() []string {
	return r.registry.MembersOf(r.cfg.Room)
}

// admitted reports whether sender is still registered and its origin still
// allowed. Callers hold mu.
func (r *Relay) admitted(ctx context.Context, sender presence.Entry) error {
	if _, ok := r.registry.Get(sender.ConnID); !ok {
		return domain.ErrNotJoined
	}
	if r.guard.IsBlocked(ctx, sender.Origin) {
		return domain.ErrBlocked
	}
	return nil
}

// publish marshals ev into d and hands it to the hub. Callers hold mu.
func (r *Relay) publish(ev domain.ServerEvent, d domain.Delivery) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()))
		return
	}
	d.Room = r.cfg.Room
	d.Payload = payload
	if !r.hub.Publish(d) {
		slog.Warn("broadcast dropped, hub stopped", slog.String("type", ev.Type))
	}
}

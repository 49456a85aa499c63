// Package notify decides when a chat event needs to reach participants who are
// not connected, and delivers it through best-effort offline channels.
package notify

import (
	"context"
	"log/slog"
)

// Notification is one chat or attention event that may need offline delivery.
type Notification struct {
	Room      string  `json:"room"`
	Sender    string  `json:"sender"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	MessageID int64   `json:"message_id,omitempty"`
	Kind      string  `json:"kind"`
	Timestamp float64 `json:"timestamp"`
}

// Task is a single attempt to reach one recipient through one channel.
type Task struct {
	Channel      string       `json:"channel"`
	Recipient    string       `json:"recipient"`
	Notification Notification `json:"notification"`
}

// Channel is an offline delivery transport.
type Channel interface {
	Name() string
	// Reachable reports whether an attempt can be made for recipient at all,
	// e.g. a chat id or push subscription exists.
	Reachable(ctx context.Context, recipient string) bool
	Deliver(ctx context.Context, recipient string, n Notification) error
}

// Runner executes tasks without blocking the caller.
type Runner interface {
	// Submit reports false when the task was not accepted.
	Submit(task Task) bool
}

// Presence answers whether an identity has a live connection in a room.
type Presence interface {
	IsOnline(room, identity string) bool
}

// Outcome of evaluating a notification.
type Outcome int

const (
	NotNeeded Outcome = iota
	Escalated
)

func (o Outcome) String() string {
	if o == Escalated {
		return "escalated"
	}
	return "not_needed"
}

// Result describes what Evaluate decided.
type Result struct {
	Outcome Outcome
	// Offline lists recipients without a live connection.
	Offline []string
	// Submitted counts tasks accepted by the runner.
	Submitted int
	// Attempted counts tasks for which a channel was reachable.
	Attempted int
}

// Dispatcher evaluates notifications against the roster and live presence.
type Dispatcher struct {
	members  func() []string
	presence Presence
	channels []Channel
	runner   Runner
}

// NewDispatcher builds a dispatcher. members returns every participant of the
// room, sender included.
func NewDispatcher(members func() []string, presence Presence, runner Runner, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		members:  members,
		presence: presence,
		channels: channels,
		runner:   runner,
	}
}

// Evaluate submits one task per offline recipient and reachable channel.
// Delivery happens asynchronously; failures never reach the caller.
func (d *Dispatcher) Evaluate(ctx context.Context, n Notification) Result {
	var res Result

	for _, recipient := range d.members() {
		if recipient == n.Sender || d.presence.IsOnline(n.Room, recipient) {
			continue
		}
		res.Offline = append(res.Offline, recipient)

		for _, ch := range d.channels {
			if !ch.Reachable(ctx, recipient) {
				continue
			}
			res.Attempted++
			if d.runner.Submit(Task{Channel: ch.Name(), Recipient: recipient, Notification: n}) {
				res.Submitted++
			}
		}
	}

	if len(res.Offline) > 0 {
		res.Outcome = Escalated
		slog.Debug("escalating notification",
			slog.String("sender", n.Sender),
			slog.String("kind", n.Kind),
			slog.Any("offline", res.Offline),
			slog.Int("submitted", res.Submitted))
	}
	return res
}

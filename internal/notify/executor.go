package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"secure-relay/internal/observability"
)

// Executor runs a task against its channel under a fresh timeout.
type Executor struct {
	channels map[string]Channel
	timeout  time.Duration
}

func NewExecutor(timeout time.Duration, channels ...Channel) *Executor {
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	return &Executor{channels: byName, timeout: timeout}
}

// Execute derives its deadline from parent, never from the request that
// produced the task, so one slow channel cannot cancel a sibling.
func (e *Executor) Execute(parent context.Context, task Task) error {
	ch, ok := e.channels[task.Channel]
	if !ok {
		observability.EscalationAttempts.WithLabelValues(task.Channel, "unknown_channel").Inc()
		return fmt.Errorf("unknown notification channel %q", task.Channel)
	}

	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	start := time.Now()
	err := ch.Deliver(ctx, task.Recipient, task.Notification)
	if err != nil {
		observability.EscalationAttempts.WithLabelValues(task.Channel, "failed").Inc()
		slog.Warn("notification delivery failed",
			slog.String("channel", task.Channel),
			slog.String("recipient", task.Recipient),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return err
	}

	observability.EscalationAttempts.WithLabelValues(task.Channel, "delivered").Inc()
	slog.Info("notification delivered",
		slog.String("channel", task.Channel),
		slog.String("recipient", task.Recipient),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

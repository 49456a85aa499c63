package messaging

import (
	"context"
	"log/slog"
	"time"

	"secure-relay/internal/notify"
	"secure-relay/internal/observability"
)

const publishTimeout = 5 * time.Second

type taskPublisher interface {
	PublishTask(ctx context.Context, task notify.Task) error
}

// JobPublisher hands escalation tasks to the broker instead of running them
// in-process. It satisfies notify.Runner.
type JobPublisher struct {
	pub     taskPublisher
	timeout time.Duration
}

func NewJobPublisher(pub taskPublisher) *JobPublisher {
	return &JobPublisher{pub: pub, timeout: publishTimeout}
}

func (p *JobPublisher) Submit(task notify.Task) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.pub.PublishTask(ctx, task); err != nil {
		observability.EscalationsDropped.Inc()
		slog.Error("failed to enqueue escalation task",
			slog.String("channel", task.Channel),
			slog.String("recipient", task.Recipient),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"secure-relay/internal/notify"
)

type taskExecutor interface {
	Execute(ctx context.Context, task notify.Task) error
}

// JobConsumer executes escalation tasks pulled from the queue. Delivery is
// best-effort: failed attempts are acked, not requeued.
type JobConsumer struct {
	rmq     *RabbitMQ
	exec    taskExecutor
	workers int
}

func NewJobConsumer(rmq *RabbitMQ, exec taskExecutor, workers int) *JobConsumer {
	if workers <= 0 {
		workers = 1
	}
	return &JobConsumer{rmq: rmq, exec: exec, workers: workers}
}

// Run blocks until ctx is cancelled or the broker closes the delivery channel.
func (c *JobConsumer) Run(ctx context.Context) error {
	msgs, err := c.rmq.ConsumeTasks(c.workers)
	if err != nil {
		return err
	}
	return c.process(ctx, msgs)
}

func (c *JobConsumer) process(ctx context.Context, msgs <-chan amqp.Delivery) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case msg, ok := <-msgs:
					if !ok {
						slog.Warn("escalation consumer channel closed")
						return nil
					}
					c.handle(msg)
				}
			}
		})
	}
	return g.Wait()
}

func (c *JobConsumer) handle(msg amqp.Delivery) {
	var task notify.Task
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		slog.Error("error unmarshaling escalation task",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(msg.Body)))
		if err := msg.Nack(false, false); err != nil {
			slog.Error("failed to nack task", slog.String("error", err.Error()))
		}
		return
	}

	// Executor logs and counts the outcome; tasks are never retried.
	_ = c.exec.Execute(context.Background(), task)

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack task", slog.String("error", err.Error()))
	}
}

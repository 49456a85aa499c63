package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"secure-relay/internal/notify"
)

const (
	EscalationExchange   = "relay.escalations"
	EscalationQueue      = "escalation.jobs"
	EscalationRoutingKey = "escalation.job"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials with exponential backoff until the broker
// accepts the connection or ctx expires. Brokers started alongside the relay
// usually need a few seconds before they accept clients.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // bounded by ctx

	var rmq *RabbitMQ
	err := backoff.RetryNotify(func() error {
		var err error
		rmq, err = NewRabbitMQ(url)
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		slog.Warn("rabbitmq not ready, retrying",
			slog.String("error", err.Error()),
			slog.Duration("wait", wait))
	})
	if err != nil {
		return nil, err
	}
	return rmq, nil
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		EscalationExchange, // name
		"direct",           // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		return fmt.Errorf("failed to declare escalation exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		EscalationQueue, // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", EscalationQueue, err)
	}

	if err := r.channel.QueueBind(
		EscalationQueue,
		EscalationRoutingKey,
		EscalationExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", EscalationQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishTask enqueues one escalation job as a persistent JSON message.
func (r *RabbitMQ) PublishTask(ctx context.Context, task notify.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		EscalationExchange,
		EscalationRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}

	slog.Debug("published escalation task",
		slog.String("channel", task.Channel),
		slog.String("recipient", task.Recipient))
	return nil
}

// ConsumeTasks registers a manual-ack consumer. prefetch bounds unacked
// deliveries held by this process.
func (r *RabbitMQ) ConsumeTasks(prefetch int) (<-chan amqp.Delivery, error) {
	if err := r.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := r.channel.Consume(
		EscalationQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming escalation tasks",
		slog.String("queue", EscalationQueue))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

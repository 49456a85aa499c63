// Command notifier consumes escalation jobs from RabbitMQ and delivers them
// through the configured offline channels.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secure-relay/internal/app"
	"secure-relay/internal/config"
	"secure-relay/internal/messaging"
	"secure-relay/internal/notify"
	"secure-relay/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("notifier failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("notifier stopped")
}

func run(cfg *config.Config) error {
	if cfg.RabbitMQURL == "" {
		return errors.New("RABBITMQ_URL is required for the notifier")
	}
	if cfg.DatabaseDriver == config.DriverMemory && cfg.PushEnabled() {
		slog.Warn("memory driver cannot see subscriptions registered with the relay server, push will find no recipients")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roster, err := config.LoadParticipants(cfg.ParticipantsFile)
	if err != nil {
		return err
	}

	connCtx, connCancel := context.WithTimeout(ctx, 60*time.Second)
	defer connCancel()

	storage, err := app.OpenStorage(connCtx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer storage.Close()

	rmq, err := messaging.NewRabbitMQWithRetry(connCtx, cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer rmq.Close()

	channels := app.Channels(cfg, roster, storage.Subscriptions)
	if len(channels) == 0 {
		slog.Warn("no notification channels configured, jobs will fail and be acknowledged")
	}

	consumer := messaging.NewJobConsumer(rmq, notify.NewExecutor(cfg.EscalationTimeout, channels...), cfg.EscalationWorkers)

	slog.Info("notifier consuming escalation jobs",
		slog.String("queue", messaging.EscalationQueue),
		slog.Int("workers", cfg.EscalationWorkers))

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"secure-relay/internal/app"
	"secure-relay/internal/config"
	"secure-relay/internal/guard"
	"secure-relay/internal/handler"
	"secure-relay/internal/messaging"
	"secure-relay/internal/middleware"
	"secure-relay/internal/notify"
	"secure-relay/internal/observability"
	"secure-relay/internal/presence"
	"secure-relay/internal/service"
	"secure-relay/internal/store"
	"secure-relay/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("relay server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}

func run(cfg *config.Config) error {
	slog.Info("starting relay server",
		slog.String("environment", cfg.Environment),
		slog.String("database_driver", cfg.DatabaseDriver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roster, err := config.LoadParticipants(cfg.ParticipantsFile)
	if err != nil {
		return err
	}

	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()

	storage, err := app.OpenStorage(connCtx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer storage.Close()

	messages := store.New(storage.Messages, cfg.StoreCapacityBytes)
	if err := messages.Load(connCtx); err != nil {
		return err
	}

	var readiness []handler.ReadinessCheck
	if storage.DB != nil {
		readiness = append(readiness, handler.DatabaseCheck(storage.DB))
	}

	var originGuard guard.Guard = guard.NewMemoryGuard()
	if cfg.RedisURL != "" {
		client, err := guard.NewRedisClient(connCtx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		redisGuard := guard.NewRedisGuard(client)
		originGuard = redisGuard
		readiness = append(readiness, handler.PingCheck("redis", redisGuard))
		slog.Info("connected to redis, blocklist is shared")
	}

	channels := app.Channels(cfg, roster, storage.Subscriptions)

	var runner notify.Runner
	var localRunner *notify.LocalRunner
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		defer rmqCancel()

		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer rmq.Close()
		runner = messaging.NewJobPublisher(rmq)
		readiness = append(readiness, handler.RabbitMQCheck(rmq))
		slog.Info("escalations are published to rabbitmq")
	} else {
		localRunner = notify.NewLocalRunner(notify.NewExecutor(cfg.EscalationTimeout, channels...), cfg.EscalationWorkers)
		runner = localRunner
	}

	registry := presence.NewRegistry()
	hub := websocket.NewHub(registry, 0)
	dispatcher := notify.NewDispatcher(roster.Names, registry, runner, channels...)

	relay := service.NewRelay(service.RelayConfig{
		Room:              roster.Room,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		ReplayLimit:       cfg.RecentReplayLimit,
		SelfDestructBlock: cfg.SelfDestructBlock,
		PingText:          cfg.PingText,
	}, messages, registry, hub, originGuard, dispatcher)

	authService := service.NewAuthService(roster, storage.Sessions, cfg.SessionTTL)
	cleanup, err := service.NewSessionCleanup(authService, cfg.SessionCleanupCron)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router := app.NewRouter(cfg, app.Routes{
		Auth:          handler.NewAuthHandler(authService, cfg.IsProduction()),
		Messages:      handler.NewMessageHandler(messages, relay),
		Status:        handler.NewStatusHandler(messages, relay),
		Subscriptions: handler.NewSubscriptionHandler(storage.Subscriptions),
		WebSocket:     handler.NewWebSocketHandler(relay, roster.Room, cfg.Origins(), cfg.MaxMessageBytes),
		Sessions:      authService,
		Guard:         originGuard,
		Registry:      registry,
		Limiter:       limiter,
		Readiness:     readiness,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return cleanup.Run(gctx) })
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("relay server listening",
			slog.String("port", cfg.Port),
			slog.String("room", roster.Room),
			slog.Int("participants", len(roster.Participants)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if localRunner != nil {
		localRunner.Wait()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

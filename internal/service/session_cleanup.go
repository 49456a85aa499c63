package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

const cleanupRetryDelay = 30 * time.Second

type sessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// SessionCleanup purges expired sessions on a cron schedule.
type SessionCleanup struct {
	cleaner sessionCleaner
	expr    string
	now     func() time.Time
}

func NewSessionCleanup(cleaner sessionCleaner, expr string) (*SessionCleanup, error) {
	if expr == "" {
		expr = "@hourly"
	}
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid session cleanup cron expression: %q", expr)
	}
	return &SessionCleanup{cleaner: cleaner, expr: expr, now: time.Now}, nil
}

// Run sleeps until each next tick and purges. It returns when ctx is done.
func (c *SessionCleanup) Run(ctx context.Context) error {
	slog.Info("session cleanup scheduled", slog.String("cron", c.expr))

	for {
		wait := cleanupRetryDelay
		next, err := gronx.NextTickAfter(c.expr, c.now().UTC(), false)
		if err != nil {
			slog.Error("failed to compute next session cleanup",
				slog.String("cron", c.expr),
				slog.String("error", err.Error()))
		} else {
			wait = next.Sub(c.now().UTC())
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("session cleanup stopping")
			return ctx.Err()
		case <-timer.C:
		}

		if err == nil {
			c.runOnce(ctx)
		}
	}
}

func (c *SessionCleanup) runOnce(ctx context.Context) {
	removed, err := c.cleaner.CleanupExpired(ctx)
	if err != nil {
		slog.Error("session cleanup failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		slog.Info("expired sessions removed", slog.Int64("count", removed))
	}
}

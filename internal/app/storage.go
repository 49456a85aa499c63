// Package app assembles the pieces shared by the relay server and the
// notifier worker from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"secure-relay/internal/config"
	"secure-relay/internal/domain"
	"secure-relay/internal/repository/memory"
	"secure-relay/internal/repository/sqldb"
)

// Storage bundles the repositories for the configured driver. DB is nil for
// the memory driver.
type Storage struct {
	DB            *sql.DB
	Messages      domain.MessageRepository
	Sessions      domain.SessionRepository
	Subscriptions domain.SubscriptionRepository
}

// OpenStorage connects, migrates and builds repositories.
func OpenStorage(ctx context.Context, driver, url string) (*Storage, error) {
	if driver == config.DriverMemory {
		slog.Warn("using in-memory storage, history and sessions are lost on restart")
		return &Storage{
			Messages:      memory.NewMessageRepository(),
			Sessions:      memory.NewSessionRepository(),
			Subscriptions: memory.NewSubscriptionRepository(),
		}, nil
	}

	db, err := config.NewDatabase(ctx, driver, url)
	if err != nil {
		return nil, err
	}

	dialect := sqldb.DialectSQLite
	if driver == config.DriverPostgres {
		dialect = sqldb.DialectPostgres
	}
	if err := sqldb.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s schema: %w", driver, err)
	}

	sessions, err := sqldb.NewSessionRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("storage ready", slog.String("driver", driver))
	return &Storage{
		DB:            db,
		Messages:      sqldb.NewMessageRepository(db, dialect),
		Sessions:      sessions,
		Subscriptions: sqldb.NewSubscriptionRepository(db),
	}, nil
}

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Package sqldb implements the durable repositories on database/sql. The same
// queries run against SQLite (mattn/go-sqlite3) and PostgreSQL (lib/pq); only
// the schema and sequence lookup differ per dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender TEXT NOT NULL,
	body TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'text',
	timestamp REAL NOT NULL,
	reply_to INTEGER,
	size INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity TEXT NOT NULL,
	endpoint TEXT NOT NULL UNIQUE,
	p256dh TEXT NOT NULL,
	auth TEXT NOT NULL,
	user_agent TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_push_subscriptions_identity ON push_subscriptions(identity);

CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	sender TEXT NOT NULL,
	body TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'text',
	timestamp DOUBLE PRECISION NOT NULL,
	reply_to BIGINT,
	size BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	id BIGSERIAL PRIMARY KEY,
	identity TEXT NOT NULL,
	endpoint TEXT NOT NULL UNIQUE,
	p256dh TEXT NOT NULL,
	auth TEXT NOT NULL,
	user_agent TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_push_subscriptions_identity ON push_subscriptions(identity);

CREATE TABLE IF NOT EXISTS sessions (
	id BIGSERIAL PRIMARY KEY,
	identity TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	expires_at BIGINT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

// Schema returns the DDL for the dialect.
func Schema(d Dialect) (string, error) {
	switch d {
	case DialectSQLite:
		return sqliteSchema, nil
	case DialectPostgres:
		return postgresSchema, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", d)
	}
}

// Migrate creates every table that does not exist yet.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	schema, err := Schema(d)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply %s schema: %w", d, err)
	}
	return nil
}

func lastIDQuery(d Dialect) string {
	if d == DialectPostgres {
		return `SELECT CASE WHEN is_called THEN last_value ELSE 0 END FROM messages_id_seq`
	}
	return `SELECT COALESCE((SELECT seq FROM sqlite_sequence WHERE name = 'messages'), 0)`
}

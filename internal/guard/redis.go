package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const blockedKeyPrefix = "blocked:ip:"

// RedisGuard stores one key per blocked origin and lets Redis expire it.
// Several relay instances sharing one Redis see the same blocklist.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func blockedKey(origin string) string {
	return blockedKeyPrefix + origin
}

// IsBlocked fails open when Redis is unreachable; the error is logged.
func (g *RedisGuard) IsBlocked(ctx context.Context, origin string) bool {
	n, err := g.client.Exists(ctx, blockedKey(origin)).Result()
	if err != nil {
		slog.Warn("blocklist lookup failed",
			slog.String("origin", origin),
			slog.String("error", err.Error()))
		return false
	}
	return n > 0
}

// Block sets the key with a fresh ttl of d, replacing any earlier block.
func (g *RedisGuard) Block(ctx context.Context, origin string, d time.Duration, reason string) error {
	if err := g.client.Set(ctx, blockedKey(origin), reason, d).Err(); err != nil {
		return fmt.Errorf("failed to block origin: %w", err)
	}
	return nil
}

func (g *RedisGuard) Unblock(ctx context.Context, origin string) error {
	if err := g.client.Del(ctx, blockedKey(origin)).Err(); err != nil {
		return fmt.Errorf("failed to unblock origin: %w", err)
	}
	return nil
}

func (g *RedisGuard) Count(ctx context.Context) (int, error) {
	count := 0
	iter := g.client.Scan(ctx, 0, blockedKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count blocked origins: %w", err)
	}
	return count, nil
}

// Ping is used by the readiness check.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

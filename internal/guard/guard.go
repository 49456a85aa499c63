// Package guard keeps the temporary origin blocklist consulted before any
// request or websocket event reaches the relay.
package guard

import (
	"context"
	"time"
)

// Guard answers whether a network origin is currently blocked.
type Guard interface {
	IsBlocked(ctx context.Context, origin string) bool
	Block(ctx context.Context, origin string, d time.Duration, reason string) error
	Unblock(ctx context.Context, origin string) error
	// Count returns the number of origins blocked right now.
	Count(ctx context.Context) (int, error)
}

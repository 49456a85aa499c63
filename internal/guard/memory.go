package guard

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is a process-local blocklist. Expired entries are purged lazily
// when looked up or counted.
type MemoryGuard struct {
	mu      sync.Mutex
	blocked map[string]time.Time
	now     func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		blocked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (g *MemoryGuard) IsBlocked(_ context.Context, origin string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok := g.blocked[origin]
	if !ok {
		return false
	}
	if !g.now().Before(until) {
		delete(g.blocked, origin)
		return false
	}
	return true
}

// Block sets the expiry for origin to now+d, replacing any earlier block.
func (g *MemoryGuard) Block(_ context.Context, origin string, d time.Duration, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked[origin] = g.now().Add(d)
	return nil
}

func (g *MemoryGuard) Unblock(_ context.Context, origin string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.blocked, origin)
	return nil
}

func (g *MemoryGuard) Count(_ context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for origin, until := range g.blocked {
		if !now.Before(until) {
			delete(g.blocked, origin)
		}
	}
	return len(g.blocked), nil
}

// Package presence tracks which identities are connected, from which origin,
// and through which live connection.
package presence

import (
	"sort"
	"sync"

	"secure-relay/internal/domain"
)

// Entry describes one registered connection.
type Entry struct {
	ConnID   string
	Identity string
	Room     string
	Origin   string
	Conn     domain.Connection
	// ReplayedThrough is the id of the newest message included in the
	// replay batch sent on join.
	ReplayedThrough int64
}

// Registry maps connection ids to entries. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Add registers or replaces the entry for e.ConnID.
func (r *Registry) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ConnID] = e
}

// Remove drops the connection and returns what was registered. Unknown ids
// are a no-op.
func (r *Registry) Remove(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if ok {
		delete(r.entries, connID)
	}
	return e, ok
}

func (r *Registry) Get(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	return e, ok
}

// MembersOf returns the distinct identities connected to room, sorted.
func (r *Registry) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	members := make([]string, 0)
	for _, e := range r.entries {
		if e.Room != room {
			continue
		}
		if _, dup := seen[e.Identity]; dup {
			continue
		}
		seen[e.Identity] = struct{}{}
		members = append(members, e.Identity)
	}
	sort.Strings(members)
	return members
}

// IsOnline reports whether identity has at least one connection in room.
func (r *Registry) IsOnline(room, identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Room == room && e.Identity == identity {
			return true
		}
	}
	return false
}

// Connections returns the entries registered in room.
func (r *Registry) Connections(room string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Room == room {
			out = append(out, e)
		}
	}
	return out
}

// Drain removes and returns every entry.
func (r *Registry) Drain() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.entries = make(map[string]Entry)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Package store implements the bounded message store: an append-only chat
// history with byte-size accounting and capacity-triggered eviction of the
// oldest messages.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"secure-relay/internal/domain"
	"secure-relay/internal/observability"
)

// MessageStore serializes every operation on the message history. Rows live
// in the repository; the store keeps an ascending (id, size) index so that
// eviction and stats never need a query.
type MessageStore struct {
	mu       sync.RWMutex
	repo     domain.MessageRepository
	capacity int64

	index  []domain.MessageSize
	total  int64
	lastID int64
}

// New creates a store with the given capacity in bytes. Call Load before use
// when the repository may already hold messages.
func New(repo domain.MessageRepository, capacityBytes int64) *MessageStore {
	return &MessageStore{
		repo:     repo,
		capacity: capacityBytes,
	}
}

// Load rebuilds the accounting index from the repository and evicts down to
// capacity if the stored history exceeds it.
func (s *MessageStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sizes, err := s.repo.ListSizes(ctx)
	if err != nil {
		return fmt.Errorf("%w: load message index: %v", domain.ErrStorage, err)
	}
	lastID, err := s.repo.LastID(ctx)
	if err != nil {
		return fmt.Errorf("%w: load last message id: %v", domain.ErrStorage, err)
	}

	var total int64
	for _, e := range sizes {
		total += e.Size
		if e.ID > lastID {
			lastID = e.ID
		}
	}
	s.index = sizes
	s.total = total
	s.lastID = lastID

	n, freed := s.evictionPlan(0)
	if n > 0 {
		through := s.index[n-1].ID
		if err := s.repo.DeleteThrough(ctx, through); err != nil {
			return fmt.Errorf("%w: shrink history to capacity: %v", domain.ErrStorage, err)
		}
		s.index = s.index[n:]
		s.total -= freed
		observability.MessagesEvicted.Add(float64(n))
		slog.Info("evicted messages above capacity on load",
			slog.Int("evicted", n),
			slog.Int64("through_id", through))
	}
	s.publishGauges()

	slog.Info("message store loaded",
		slog.Int("count", len(s.index)),
		slog.Int64("total_bytes", s.total),
		slog.Int64("capacity_bytes", s.capacity))
	return nil
}

// evictionPlan returns how many of the oldest messages must go, and how many
// bytes that frees, for incoming bytes to fit under capacity. Must be called
// with mu held.
func (s *MessageStore) evictionPlan(incoming int64) (int, int64) {
	n := 0
	var freed int64
	for s.total+incoming-freed > s.capacity && n < len(s.index) {
		freed += s.index[n].Size
		n++
	}
	return n, freed
}

// Append stores a new message and evicts the oldest messages until the total
// size fits the capacity again. The new message itself is never evicted. On a
// storage failure nothing changes and the returned error wraps
// domain.ErrStorage.
func (s *MessageStore) Append(ctx context.Context, sender, body string, kind domain.Kind, timestamp float64, replyTo *int64) (*domain.Message, error) {
	size := int64(len(body))

	s.mu.Lock()
	defer s.mu.Unlock()

	if replyTo != nil && (*replyTo <= 0 || *replyTo > s.lastID) {
		return nil, fmt.Errorf("%w: reply_to %d does not reference an earlier message", domain.ErrInvalidInput, *replyTo)
	}

	n, freed := s.evictionPlan(size)
	var evictThrough int64
	if n > 0 {
		evictThrough = s.index[n-1].ID
	}

	msg := &domain.Message{
		Sender:    sender,
		Body:      body,
		Kind:      kind,
		Timestamp: timestamp,
		ReplyTo:   replyTo,
		Size:      size,
	}
	if err := s.repo.InsertAndEvict(ctx, msg, evictThrough); err != nil {
		return nil, fmt.Errorf("%w: append message: %v", domain.ErrStorage, err)
	}

	s.index = append(s.index[n:], domain.MessageSize{ID: msg.ID, Size: size})
	s.total += size - freed
	if msg.ID > s.lastID {
		s.lastID = msg.ID
	}

	observability.MessagesAppended.WithLabelValues(string(kind)).Inc()
	if n > 0 {
		observability.MessagesEvicted.Add(float64(n))
		slog.Debug("evicted oldest messages",
			slog.Int("evicted", n),
			slog.Int64("through_id", evictThrough),
			slog.Int64("freed_bytes", freed))
	}
	s.publishGauges()

	return msg, nil
}

// Recent returns the min(limit, count) most recent messages, oldest first.
// A non-positive limit yields an empty list.
func (s *MessageStore) Recent(ctx context.Context, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, err := s.repo.GetRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent messages: %v", domain.ErrStorage, err)
	}
	return msgs, nil
}

// Paginated returns retained history in id order, offset counted from the
// oldest retained message.
func (s *MessageStore) Paginated(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, err := s.repo.GetPage(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: paginated messages: %v", domain.ErrStorage, err)
	}
	return msgs, nil
}

// Before returns messages older than the timestamp cursor, most recent first.
func (s *MessageStore) Before(ctx context.Context, before float64, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, err := s.repo.GetBefore(ctx, before, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: messages before cursor: %v", domain.ErrStorage, err)
	}
	return msgs, nil
}

// ByID returns a single message or domain.ErrMessageNotFound.
func (s *MessageStore) ByID(ctx context.Context, id int64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: message by id: %v", domain.ErrStorage, err)
	}
	return msg, nil
}

// Stats reports count, retained bytes and capacity.
func (s *MessageStore) Stats() domain.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.StoreStats{
		Count:         len(s.index),
		TotalBytes:    s.total,
		CapacityBytes: s.capacity,
	}
}

// LastID is the highest id ever assigned, including cleared and evicted ids.
func (s *MessageStore) LastID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID
}

// ClearAll removes every message. It waits for in-flight operations and
// blocks new ones until the clear has committed.
func (s *MessageStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%w: clear history: %v", domain.ErrStorage, err)
	}
	s.index = nil
	s.total = 0
	s.publishGauges()

	slog.Info("message history cleared")
	return nil
}

func (s *MessageStore) publishGauges() {
	observability.StoreBytes.Set(float64(s.total))
	observability.StoreMessages.Set(float64(len(s.index)))
}

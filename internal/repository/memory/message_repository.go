// Package memory provides process-local repositories used when no database is
// configured and by unit tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"secure-relay/internal/domain"
)

// MessageRepository keeps messages in ascending id order.
type MessageRepository struct {
	mu     sync.RWMutex
	rows   []*domain.Message
	lastID int64
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

func (r *MessageRepository) InsertAndEvict(ctx context.Context, msg *domain.Message, evictThrough int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if evictThrough > 0 {
		r.deleteThrough(evictThrough)
	}

	r.lastID++
	msg.ID = r.lastID
	stored := *msg
	r.rows = append(r.rows, &stored)
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := sort.Search(len(r.rows), func(i int) bool { return r.rows[i].ID >= id })
	if i < len(r.rows) && r.rows[i].ID == id {
		return copyMessage(r.rows[i]), nil
	}
	return nil, domain.ErrMessageNotFound
}

func (r *MessageRepository) GetRecent(ctx context.Context, limit int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := len(r.rows) - limit
	if start < 0 {
		start = 0
	}
	return copyMessages(r.rows[start:]), nil
}

func (r *MessageRepository) GetPage(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset >= len(r.rows) {
		return []*domain.Message{}, nil
	}
	end := offset + limit
	if end > len(r.rows) {
		end = len(r.rows)
	}
	return copyMessages(r.rows[offset:end]), nil
}

func (r *MessageRepository) GetBefore(ctx context.Context, before float64, limit int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var older []*domain.Message
	for _, m := range r.rows {
		if m.Timestamp < before {
			older = append(older, m)
		}
	}
	// Most recent first by timestamp, ties broken by id, as the SQL backend orders them.
	sort.Slice(older, func(i, j int) bool {
		if older[i].Timestamp != older[j].Timestamp {
			return older[i].Timestamp > older[j].Timestamp
		}
		return older[i].ID > older[j].ID
	})
	if limit < len(older) {
		older = older[:max(limit, 0)]
	}
	return copyMessages(older), nil
}

func (r *MessageRepository) ListSizes(ctx context.Context) ([]domain.MessageSize, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sizes := make([]domain.MessageSize, 0, len(r.rows))
	for _, m := range r.rows {
		sizes = append(sizes, domain.MessageSize{ID: m.ID, Size: m.Size})
	}
	return sizes, nil
}

func (r *MessageRepository) LastID(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastID, nil
}

func (r *MessageRepository) DeleteThrough(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteThrough(id)
	return nil
}

func (r *MessageRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = nil
	return nil
}

func (r *MessageRepository) deleteThrough(id int64) {
	i := sort.Search(len(r.rows), func(i int) bool { return r.rows[i].ID > id })
	r.rows = append([]*domain.Message(nil), r.rows[i:]...)
}

func copyMessage(m *domain.Message) *domain.Message {
	c := *m
	if m.ReplyTo != nil {
		v := *m.ReplyTo
		c.ReplyTo = &v
	}
	return &c
}

func copyMessages(rows []*domain.Message) []*domain.Message {
	out := make([]*domain.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, copyMessage(m))
	}
	return out
}

package domain

import (
	"context"
	"fmt"
)

// Kind is the media kind of a chat message.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind validates a kind string. An empty string means text.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindText:
		return KindText, nil
	case KindAudio, KindVideo:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown message kind %q", ErrInvalidInput, s)
	}
}

// Message is a stored chat event. For audio and video the body is a
// reference to the finished media artifact, never the raw bytes.
type Message struct {
	ID        int64   `json:"id"`
	Sender    string  `json:"sender"`
	Body      string  `json:"body"`
	Kind      Kind    `json:"kind"`
	Timestamp float64 `json:"timestamp"`
	ReplyTo   *int64  `json:"reply_to,omitempty"`
	Size      int64   `json:"size"`
}

// MessageSize is the accounting view of a retained message.
type MessageSize struct {
	ID   int64
	Size int64
}

// StoreStats describes the current retention state of the message store.
type StoreStats struct {
	Count         int   `json:"message_count"`
	TotalBytes    int64 `json:"total_bytes"`
	CapacityBytes int64 `json:"capacity_bytes"`
}

// MessageRepository defines durable message storage. Implementations assign
// ids that are never reused.
type MessageRepository interface {
	// InsertAndEvict inserts msg, setting msg.ID, and deletes every message
	// with id <= evictThrough in the same transaction. evictThrough <= 0
	// deletes nothing.
	InsertAndEvict(ctx context.Context, msg *Message, evictThrough int64) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// GetRecent returns the newest limit messages in ascending id order.
	GetRecent(ctx context.Context, limit int) ([]*Message, error)
	// GetPage returns messages in ascending id order starting offset rows
	// after the oldest retained message.
	GetPage(ctx context.Context, limit, offset int) ([]*Message, error)
	// GetBefore returns messages with timestamp strictly before the cursor,
	// most recent first.
	GetBefore(ctx context.Context, before float64, limit int) ([]*Message, error)
	ListSizes(ctx context.Context) ([]MessageSize, error)
	LastID(ctx context.Context) (int64, error)
	DeleteThrough(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
}

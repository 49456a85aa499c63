package domain

import (
	"context"
	"fmt"
	"time"
)

// Subscription is a web push subscription registered by a browser.
type Subscription struct {
	Identity  string    `json:"identity"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate reports precisely which required field is missing.
func (s *Subscription) Validate() error {
	switch {
	case s.Identity == "":
		return fmt.Errorf("%w: identity is required", ErrInvalidInput)
	case s.Endpoint == "":
		return fmt.Errorf("%w: subscription endpoint is required", ErrInvalidInput)
	case s.P256dh == "":
		return fmt.Errorf("%w: subscription key p256dh is required", ErrInvalidInput)
	case s.Auth == "":
		return fmt.Errorf("%w: subscription key auth is required", ErrInvalidInput)
	}
	return nil
}

// SubscriptionRepository stores push subscriptions keyed by endpoint.
type SubscriptionRepository interface {
	// Upsert inserts the subscription or overwrites the row with the same endpoint.
	Upsert(ctx context.Context, sub *Subscription) error
	GetByIdentity(ctx context.Context, identity string) ([]*Subscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

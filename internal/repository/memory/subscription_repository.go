package memory

import (
	"context"
	"sync"
	"time"

	"secure-relay/internal/domain"
)

// SubscriptionRepository keys subscriptions by endpoint.
type SubscriptionRepository struct {
	mu    sync.RWMutex
	byEnd map[string]domain.Subscription
	order []string
}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{byEnd: make(map[string]domain.Subscription)}
}

func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if _, exists := r.byEnd[sub.Endpoint]; !exists {
		r.order = append(r.order, sub.Endpoint)
	}
	r.byEnd[sub.Endpoint] = *sub
	return nil
}

func (r *SubscriptionRepository) GetByIdentity(ctx context.Context, identity string) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*domain.Subscription, 0)
	for _, endpoint := range r.order {
		s, ok := r.byEnd[endpoint]
		if ok && s.Identity == identity {
			c := s
			subs = append(subs, &c)
		}
	}
	return subs, nil
}

func (r *SubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEnd[endpoint]; !ok {
		return nil
	}
	delete(r.byEnd, endpoint)
	for i, e := range r.order {
		if e == endpoint {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

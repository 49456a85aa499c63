package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"secure-relay/internal/domain"
)

// SubscriptionRepository stores web push subscriptions keyed by endpoint
type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Upsert inserts the subscription or replaces identity, keys and user agent
// of the row with the same endpoint
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	defer observe("upsert", "push_subscriptions", time.Now())

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (identity, endpoint, p256dh, auth, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (endpoint) DO UPDATE SET
			identity = excluded.identity,
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			user_agent = excluded.user_agent`,
		sub.Identity,
		sub.Endpoint,
		sub.P256dh,
		sub.Auth,
		sub.UserAgent,
		sub.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) GetByIdentity(ctx context.Context, identity string) ([]*domain.Subscription, error) {
	defer observe("select", "push_subscriptions", time.Now())

	rows, err := r.db.QueryContext(ctx, `
		SELECT identity, endpoint, p256dh, auth, user_agent, created_at
		FROM push_subscriptions
		WHERE identity = $1
		ORDER BY id ASC`, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		s := &domain.Subscription{}
		var createdAt int64
		if err := rows.Scan(&s.Identity, &s.Endpoint, &s.P256dh, &s.Auth, &s.UserAgent, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

func (r *SubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	defer observe("delete", "push_subscriptions", time.Now())

	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"secure-relay/internal/domain"
)

// ErrGone means the push service no longer knows the subscription.
var ErrGone = errors.New("push subscription gone")

const pushChannelName = "push"

// PushSender delivers one payload to one subscription.
type PushSender interface {
	Send(ctx context.Context, sub *domain.Subscription, payload []byte) error
}

// PushChannel fans a notification out to every stored subscription of the
// recipient and prunes subscriptions the push service reports as gone.
type PushChannel struct {
	subs   domain.SubscriptionRepository
	sender PushSender
}

func NewPushChannel(subs domain.SubscriptionRepository, sender PushSender) *PushChannel {
	return &PushChannel{subs: subs, sender: sender}
}

func (c *PushChannel) Name() string { return pushChannelName }

func (c *PushChannel) Reachable(ctx context.Context, recipient string) bool {
	subs, err := c.subs.GetByIdentity(ctx, recipient)
	if err != nil {
		slog.Warn("failed to load push subscriptions",
			slog.String("recipient", recipient),
			slog.String("error", err.Error()))
		return false
	}
	return len(subs) > 0
}

type pushPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Sender    string `json:"sender"`
	Kind      string `json:"kind"`
	MessageID int64  `json:"message_id,omitempty"`
}

func (c *PushChannel) Deliver(ctx context.Context, recipient string, n Notification) error {
	subs, err := c.subs.GetByIdentity(ctx, recipient)
	if err != nil {
		return fmt.Errorf("failed to load push subscriptions: %w", err)
	}

	payload, err := json.Marshal(pushPayload{
		Title:     n.Title,
		Body:      n.Body,
		Sender:    n.Sender,
		Kind:      n.Kind,
		MessageID: n.MessageID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	var errs []error
	for _, sub := range subs {
		err := c.sender.Send(ctx, sub, payload)
		switch {
		case errors.Is(err, ErrGone):
			if delErr := c.subs.DeleteByEndpoint(ctx, sub.Endpoint); delErr != nil {
				errs = append(errs, fmt.Errorf("failed to prune subscription: %w", delErr))
				continue
			}
			slog.Info("pruned stale push subscription",
				slog.String("recipient", recipient),
				slog.String("endpoint", sub.Endpoint))
		case err != nil:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// VAPIDConfig holds the application server keys for web push.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
	TTL        int
}

// WebPushSender sends encrypted payloads with VAPID authentication.
type WebPushSender struct {
	cfg        VAPIDConfig
	httpClient *http.Client
}

func NewWebPushSender(cfg VAPIDConfig, httpClient *http.Client) *WebPushSender {
	if cfg.TTL <= 0 {
		cfg.TTL = 60
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebPushSender{cfg: cfg, httpClient: httpClient}
}

func (s *WebPushSender) Send(ctx context.Context, sub *domain.Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             s.cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("web push request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrGone
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}

package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"secure-relay/internal/domain"
	"secure-relay/internal/middleware"
)

// SubscriptionHandler registers browsers for offline push delivery
type SubscriptionHandler struct {
	subs domain.SubscriptionRepository
}

func NewSubscriptionHandler(subs domain.SubscriptionRepository) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// SubscribeRequest carries the browser's PushSubscription JSON
type SubscribeRequest struct {
	Subscription struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	} `json:"subscription"`
	UserAgent string `json:"user_agent"`
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Subscribe upserts the subscription for the authenticated participant
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub := &domain.Subscription{
		Identity:  identity,
		Endpoint:  req.Subscription.Endpoint,
		P256dh:    req.Subscription.Keys.P256dh,
		Auth:      req.Subscription.Keys.Auth,
		UserAgent: req.UserAgent,
	}
	if sub.UserAgent == "" {
		sub.UserAgent = r.UserAgent()
	}
	if err := sub.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := h.subs.Upsert(r.Context(), sub); err != nil {
		writeDomainError(w, r, err)
		return
	}

	slog.Info("push subscription registered", slog.String("identity", identity))
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// Unsubscribe removes a subscription by endpoint
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid input: subscription endpoint is required")
		return
	}

	if err := h.subs.DeleteByEndpoint(r.Context(), req.Endpoint); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

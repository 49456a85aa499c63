package handler

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"secure-relay/internal/domain"
	"secure-relay/internal/middleware"
)

// StatsSource reports message store retention.
type StatsSource interface {
	Stats() domain.StoreStats
}

// MemberLister lists identities currently connected.
type MemberLister interface {
	Members() []string
}

type StatusHandler struct {
	stats   StatsSource
	members MemberLister
	now     func() time.Time
}

func NewStatusHandler(stats StatsSource, members MemberLister) *StatusHandler {
	return &StatusHandler{stats: stats, members: members, now: time.Now}
}

type StoreStatus struct {
	domain.StoreStats
	Size     string `json:"size"`
	Capacity string `json:"capacity"`
}

type StatusResponse struct {
	User           string      `json:"user"`
	ConnectedUsers []string    `json:"connected_users"`
	Timestamp      time.Time   `json:"timestamp"`
	MessageStore   StoreStatus `json:"message_store"`
}

// Status reports who is connected and how full the history is
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	stats := h.stats.Stats()

	members := h.members.Members()
	if members == nil {
		members = []string{}
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		User:           identity,
		ConnectedUsers: members,
		Timestamp:      h.now().UTC(),
		MessageStore: StoreStatus{
			StoreStats: stats,
			Size:       humanize.IBytes(uint64(stats.TotalBytes)),
			Capacity:   humanize.IBytes(uint64(stats.CapacityBytes)),
		},
	})
}

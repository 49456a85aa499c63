package domain

import "encoding/json"

// Websocket event types.
const (
	EventChatMessage     = "chat_message"
	EventRecentMessages  = "recent_messages"
	EventMemberJoined    = "member_joined"
	EventMemberLeft      = "member_left"
	EventPing            = "ping"
	EventSignal          = "signal"
	EventClearHistory    = "clear_history"
	EventSelfDestruct    = "self_destruct"
	EventForceDisconnect = "force_disconnect"
	EventError           = "error"
	EventPingError       = "ping_error"
)

// ForceDisconnectReason tags the terminal event sent by the self-destruct protocol.
const ForceDisconnectReason = "PROTOCOL_OMEGA"

// ClientEvent is a frame received from a connected peer.
type ClientEvent struct {
	Type    string          `json:"type"`
	Body    string          `json:"body,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	ReplyTo *int64          `json:"reply_to,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is a frame sent to connected peers.
type ServerEvent struct {
	Type         string          `json:"type"`
	Message      *Message        `json:"message,omitempty"`
	ReplyContext *Message        `json:"reply_context,omitempty"`
	Messages     []*Message      `json:"messages,omitempty"`
	User         string          `json:"user,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// DeliveryMode selects whether the sending connection receives its own event.
type DeliveryMode int

const (
	// DeliverInclusive echoes the event to the sender too.
	DeliverInclusive DeliveryMode = iota
	// DeliverExcludeSender skips the sending connection.
	DeliverExcludeSender
)

// Connection is a live transport session as seen by the router.
type Connection interface {
	ID() string
	// Send queues payload without blocking. It reports false when the
	// connection cannot accept more data.
	Send(payload []byte) bool
	// Terminate flushes already queued payloads and severs the connection.
	Terminate()
}

// Delivery is one unit of work for the broadcast router.
type Delivery struct {
	Room       string
	Payload    []byte
	Mode       DeliveryMode
	SenderConn string
	// MessageID is set for chat messages so joining connections can skip
	// messages already included in their replay batch.
	MessageID int64
	// Targets overrides room lookup when set.
	Targets []Connection
	// Terminate severs every target after the payload is queued.
	Terminate bool
}

// Package protocol defines the JSON shapes wsChat exchanges with clients:
// the notices pushed over WebSocket and the admin API payloads.
//
// Chat messages themselves are free-form JSON objects; the relay only
// requires "dialogId" and "text" and adds "from".
package protocol

import "time"

// Notice types.
const (
	TypeError = "error"
)

// SystemSender is the "from" value of notices generated by the relay.
const SystemSender = "system"

// ErrorNotice is pushed to the connections a routing failure concerns.
type ErrorNotice struct {
	Text string `json:"text"`
	Type string `json:"type"`
	From string `json:"from"`
}

// NewErrorNotice builds the fixed-shape error notice for text.
func NewErrorNotice(text string) ErrorNotice {
	return ErrorNotice{Text: text, Type: TypeError, From: SystemSender}
}

// --- Admin API ---

// Stats summarizes the relay's in-memory state.
type Stats struct {
	Connections   int           `json:"connections"`
	CachedDialogs int           `json:"cached_dialogs"`
	Uptime        string        `json:"uptime"`
	StartedAt     time.Time     `json:"started_at"`
	AllowedTags   []string      `json:"allowed_tags"`
	Storage       string        `json:"storage"`
	Recent        []RecentEvent `json:"recent,omitempty"`
}

// RecentEvent is a routed message or rejection kept for the admin view.
type RecentEvent struct {
	At       time.Time `json:"at"`
	Kind     string    `json:"kind"` // "delivered", "unread" or an error kind
	DialogID int64     `json:"dialog_id,omitempty"`
	UserID   int64     `json:"user_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Connection describes one registered user connection.
type Connection struct {
	UserID int64  `json:"user_id"`
	ConnID string `json:"conn_id"`
}

// Dialog describes a dialog's membership as the relay sees it.
type Dialog struct {
	ID      int64   `json:"id"`
	Members []int64 `json:"members"`
	Online  []int64 `json:"online"`
	Cached  bool    `json:"cached"`
}

// Unread reports a user's unread message count.
type Unread struct {
	UserID int64 `json:"user_id"`
	Count  int64 `json:"count"`
}

// TokenResponse is returned by token-minting endpoints and the CLI.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

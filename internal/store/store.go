// Package store defines the storage interface for dialogs and routed
// messages and provides SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"time"
)

// Store is the persistence interface of the relay.
type Store interface {
	// Dialogs
	GetDialog(ctx context.Context, id int64) (*Dialog, error)
	PutDialog(ctx context.Context, d *Dialog) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message, unread []int64) error
	GetMessages(ctx context.Context, dialogID int64, limit int) ([]Message, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)

	// Data retention
	PurgeOldMessages(ctx context.Context, before time.Time) (int64, error)

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Dialog is a conversation row. Members is the encoded member list as written
// by the application that owns dialogs: a JSON or PHP-serialized array.
type Dialog struct {
	ID        int64     `json:"id"`
	Members   string    `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a routed chat message.
type Message struct {
	ID        string    `json:"id"`
	DialogID  int64     `json:"dialog_id"`
	SenderID  int64     `json:"sender_id"`
	Text      string    `json:"text"`
	Payload   string    `json:"payload"`   // JSON of the message as broadcast
	Delivered bool      `json:"delivered"` // every member received it
	CreatedAt time.Time `json:"created_at"`
}

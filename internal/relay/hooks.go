//go:generate go run go.uber.org/mock/mockgen -source=hooks.go -destination=mocks/mock_hooks.go -package=mocks

package relay

import (
	"context"
	"log/slog"

	"github.com/avtomon/wsChat/internal/session"
)

// PersistenceSink stores a message after fan-out. Exactly one of its methods
// is called per routed message.
type PersistenceSink interface {
	// SaveDelivered is called when every member had a live connection.
	SaveDelivered(ctx context.Context, msg *ChatMessage) error
	// SaveUnread is called with the members that did not receive the message.
	SaveUnread(ctx context.Context, msg *ChatMessage, unread []session.UserID) error
}

// SendObserver runs around delivery. BeforeSend may modify the message.
type SendObserver interface {
	BeforeSend(ctx context.Context, msg *ChatMessage) error
	AfterSend(ctx context.Context, msg *ChatMessage) error
}

// LogSink records errors that have no addressable audience.
type LogSink interface {
	LogError(ctx context.Context, msg string, attrs ...any)
}

// NopSink discards messages.
type NopSink struct{}

func (NopSink) SaveDelivered(context.Context, *ChatMessage) error                { return nil }
func (NopSink) SaveUnread(context.Context, *ChatMessage, []session.UserID) error { return nil }

// NopObserver does nothing.
type NopObserver struct{}

func (NopObserver) BeforeSend(context.Context, *ChatMessage) error { return nil }
func (NopObserver) AfterSend(context.Context, *ChatMessage) error  { return nil }

// SlogSink writes unscoped errors to a slog.Logger.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) LogError(ctx context.Context, msg string, attrs ...any) {
	s.Logger.ErrorContext(ctx, msg, attrs...)
}

package relay

import (
	"github.com/avtomon/wsChat/internal/directory"
	"github.com/avtomon/wsChat/internal/session"
)

// Kind classifies a routing failure.
type Kind int

const (
	KindAuthentication Kind = iota + 1
	KindValidation
	KindAuthorization
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindDelivery:
		return "delivery"
	}
	return "unknown"
}

// ChatError is a routing failure together with the audience that should hear
// about it. Conn, UserID and DialogID are optional; when all are empty the
// error is only logged.
type ChatError struct {
	Kind     Kind
	Message  string
	Conn     directory.Conn
	UserID   session.UserID
	DialogID directory.DialogID
	Err      error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ChatError) Unwrap() error { return e.Err }

// Scoped reports whether the error has an addressable audience.
func (e *ChatError) Scoped() bool {
	return e.Conn != nil || e.UserID != 0 || e.DialogID != 0
}

func connError(kind Kind, conn directory.Conn, msg string, err error) *ChatError {
	return &ChatError{Kind: kind, Message: msg, Conn: conn, Err: err}
}

// deliveryError is unscoped: hook failures concern no single client.
func deliveryError(msg string, err error) *ChatError {
	return &ChatError{Kind: KindDelivery, Message: msg, Err: err}
}

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avtomon/wsChat/internal/directory"
	"github.com/avtomon/wsChat/internal/relay"
	"github.com/avtomon/wsChat/internal/session"
	"github.com/avtomon/wsChat/internal/store"
)

// FieldMessageID is stamped on every outbound message before fan-out.
const FieldMessageID = "message_id"

// Persistence connects the relay to the store. It resolves dialog
// membership, records routed messages with their unread members and stamps
// each message with an id before it is sent.
type Persistence struct {
	store  store.Store
	logger *slog.Logger
}

var (
	_ relay.PersistenceSink  = (*Persistence)(nil)
	_ relay.SendObserver     = (*Persistence)(nil)
	_ directory.DialogLookup = (*Persistence)(nil)
)

// NewPersistence creates a Persistence over s.
func NewPersistence(s store.Store, logger *slog.Logger) *Persistence {
	return &Persistence{store: s, logger: logger.With("component", "persistence")}
}

func (p *Persistence) LookupDialog(ctx context.Context, id directory.DialogID) (*directory.DialogRecord, error) {
	d, err := p.store.GetDialog(ctx, int64(id))
	if err != nil {
		return nil, fmt.Errorf("get dialog %d: %w", id, err)
	}
	if d == nil {
		return nil, nil
	}
	return &directory.DialogRecord{ID: directory.DialogID(d.ID), Members: d.Members}, nil
}

func (p *Persistence) BeforeSend(_ context.Context, msg *relay.ChatMessage) error {
	return msg.Set(FieldMessageID, uuid.New().String())
}

func (p *Persistence) AfterSend(_ context.Context, msg *relay.ChatMessage) error {
	p.logger.Debug("message routed", "dialog_id", int64(msg.DialogID), "message_id", messageID(msg))
	return nil
}

func (p *Persistence) SaveDelivered(ctx context.Context, msg *relay.ChatMessage) error {
	return p.save(ctx, msg, nil)
}

func (p *Persistence) SaveUnread(ctx context.Context, msg *relay.ChatMessage, unread []session.UserID) error {
	ids := make([]int64, len(unread))
	for i, u := range unread {
		ids[i] = int64(u)
	}
	return p.save(ctx, msg, ids)
}

func (p *Persistence) save(ctx context.Context, msg *relay.ChatMessage, unread []int64) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	id := messageID(msg)
	if id == "" {
		id = uuid.New().String()
	}
	return p.store.SaveMessage(ctx, &store.Message{
		ID:       id,
		DialogID: int64(msg.DialogID),
		SenderID: int64(msg.SenderID()),
		Text:     msg.Text,
		Payload:  string(payload),
	}, unread)
}

func messageID(msg *relay.ChatMessage) string {
	raw, ok := msg.Fields[FieldMessageID]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

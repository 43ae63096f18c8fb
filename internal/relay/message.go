package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/avtomon/wsChat/internal/directory"
	"github.com/avtomon/wsChat/internal/session"
)

// Inbound field names.
const (
	FieldDialogID = "dialogId"
	FieldText     = "text"
	FieldFrom     = "from"
)

var (
	errNotObject       = errors.New("message is not a JSON object")
	errInvalidDialogID = errors.New("invalid dialog id")
)

// ChatMessage is one inbound chat message. Fields keeps every inbound field
// verbatim; Text and From replace "text" and "from" when the message is
// encoded.
type ChatMessage struct {
	DialogID directory.DialogID
	Text     string
	From     *session.Session
	Fields   map[string]json.RawMessage
}

// DecodeMessage parses raw into a ChatMessage. It fails only when raw is not
// a JSON object; a missing or malformed dialog id leaves DialogID zero and is
// reported by DialogIDError.
func DecodeMessage(raw []byte) (*ChatMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotObject, err)
	}
	if fields == nil {
		return nil, errNotObject
	}

	msg := &ChatMessage{Fields: fields}
	if rawText, ok := fields[FieldText]; ok {
		var text string
		if err := json.Unmarshal(rawText, &text); err == nil {
			msg.Text = text
		}
	}
	if id, err := parseDialogID(fields[FieldDialogID]); err == nil {
		msg.DialogID = id
	}
	// A client-supplied sender is never trusted.
	delete(fields, FieldFrom)
	return msg, nil
}

// DialogIDError explains why DialogID is zero, or returns nil.
func (m *ChatMessage) DialogIDError() error {
	if m.DialogID != 0 {
		return nil
	}
	_, err := parseDialogID(m.Fields[FieldDialogID])
	if err == nil {
		return errInvalidDialogID
	}
	return err
}

// Set replaces an extra field. Setting "text" or "from" is not allowed.
func (m *ChatMessage) Set(key string, value any) error {
	if key == FieldText || key == FieldFrom {
		return fmt.Errorf("field %q is managed by the router", key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.Fields == nil {
		m.Fields = make(map[string]json.RawMessage)
	}
	m.Fields[key] = data
	return nil
}

// Encode renders the outbound form: inbound fields plus from and text. HTML
// escaping is off so allowed tags and non-ASCII text reach clients unchanged.
func (m *ChatMessage) Encode() ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		out[k] = v
	}
	if _, ok := out[FieldDialogID]; !ok && m.DialogID != 0 {
		out[FieldDialogID] = int64(m.DialogID)
	}
	out[FieldText] = m.Text
	if m.From != nil {
		out[FieldFrom] = m.From
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SenderID returns the sender's user id, or zero before From is attached.
func (m *ChatMessage) SenderID() session.UserID {
	if m.From == nil {
		return 0
	}
	return m.From.UserID
}

func parseDialogID(raw json.RawMessage) (directory.DialogID, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("dialog id is required")
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, errInvalidDialogID
	}

	var s string
	switch val := v.(type) {
	case json.Number:
		s = val.String()
	case string:
		s = strings.TrimSpace(val)
		if s == "" {
			return 0, errors.New("dialog id is required")
		}
	default:
		return 0, errInvalidDialogID
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, errInvalidDialogID
	}
	return directory.DialogID(n), nil
}

// Package session resolves a connection's session id to an authenticated
// user by reading the session blob an external web application wrote to a
// shared store.
package session

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// UserID identifies a chat user. Zero means absent.
type UserID int64

// String implements fmt.Stringer.
func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

// ParseUserID parses a positive decimal user id.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return UserID(n), nil
}

// Session is the decoded session of an authenticated user.
type Session struct {
	ID     string
	UserID UserID
	Values map[string]any
}

// MarshalJSON emits the decoded values with user_id always set to the
// resolved numeric id. The session id itself is never serialized.
func (s *Session) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Values)+1)
	for k, v := range s.Values {
		out[k] = v
	}
	out["user_id"] = int64(s.UserID)
	return json.Marshal(out)
}

// Fingerprint returns a short, non-reversible tag for a session id, suitable
// for logs.
func Fingerprint(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}

// identityFrom extracts a positive user id from a decoded value. Integers and
// numeric strings are accepted.
func identityFrom(v any) (UserID, bool) {
	switch val := v.(type) {
	case int64:
		if val > 0 {
			return UserID(val), true
		}
	case int:
		if val > 0 {
			return UserID(val), true
		}
	case float64:
		if val > 0 && val == float64(int64(val)) {
			return UserID(int64(val)), true
		}
	case string:
		if id, err := ParseUserID(val); err == nil {
			return id, true
		}
	}
	return 0, false
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors returned by Authenticate.
var (
	ErrMissingToken     = errors.New("session id not provided")
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrSessionNotFound  = errors.New("session not found")
	ErrMalformedSession = errors.New("session data is malformed")
	ErrNoIdentity       = errors.New("session has no user identity")
)

// Store reads raw session blobs by key.
type Store interface {
	// Get returns ErrSessionNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
}

// Options configures an Authenticator.
type Options struct {
	QueryParam    string        // default PHPSESSID
	KeyNamespace  string        // default PHPREDIS_SESSION
	UserField     string        // default user_id
	LookupTimeout time.Duration // default 2s
	PublicFields  []string      // when set, only these values are kept (user_id always is)
}

// Authenticator resolves a handshake's session id to a Session.
type Authenticator struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator reading from store.
func NewAuthenticator(store Store, logger *slog.Logger, opts Options) *Authenticator {
	if opts.QueryParam == "" {
		opts.QueryParam = "PHPSESSID"
	}
	if opts.KeyNamespace == "" {
		opts.KeyNamespace = "PHPREDIS_SESSION"
	}
	if opts.UserField == "" {
		opts.UserField = "user_id"
	}
	if opts.LookupTimeout == 0 {
		opts.LookupTimeout = 2 * time.Second
	}
	return &Authenticator{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "session"),
	}
}

// QueryParam is the handshake parameter carrying the session id.
func (a *Authenticator) QueryParam() string { return a.opts.QueryParam }

// Key returns the store key for a session id.
func (a *Authenticator) Key(id string) string {
	return a.opts.KeyNamespace + ":" + id
}

// Authenticate reads the session id from query, loads and decodes the session
// and extracts the user identity.
func (a *Authenticator) Authenticate(ctx context.Context, query url.Values) (*Session, error) {
	id := strings.TrimSpace(query.Get(a.opts.QueryParam))
	if id == "" {
		return nil, ErrMissingToken
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.opts.LookupTimeout)
	defer cancel()

	blob, err := a.store.Get(lookupCtx, a.Key(id))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			a.logger.Debug("session not found", "session", Fingerprint(id))
			return nil, ErrSessionNotFound
		}
		a.logger.Warn("session store read failed", "session", Fingerprint(id), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	values, err := DecodeLegacy(blob)
	if err != nil {
		a.logger.Warn("session decode failed", "session", Fingerprint(id), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}

	uid, ok := identityFrom(values[a.opts.UserField])
	if !ok {
		return nil, ErrNoIdentity
	}

	if len(a.opts.PublicFields) > 0 {
		values = pick(values, a.opts.PublicFields)
	}

	return &Session{ID: id, UserID: uid, Values: values}, nil
}

// Ping checks the backing store.
func (a *Authenticator) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

func pick(values map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := values[f]; ok {
			out[f] = v
		}
	}
	return out
}

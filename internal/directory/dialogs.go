package directory

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/avtomon/wsChat/internal/session"
)

var (
	ErrDialogNotFound   = errors.New("dialog not found")
	ErrMalformedMembers = errors.New("dialog members are malformed")
)

// DialogID identifies a dialog. Zero means absent.
type DialogID int64

func (d DialogID) String() string { return strconv.FormatInt(int64(d), 10) }

// DialogRecord is a row returned by the persistence layer. Members holds the
// encoded member list: a JSON array or a PHP-serialized array.
type DialogRecord struct {
	ID      DialogID
	Members string
}

// DialogLookup loads dialog rows. A missing dialog is (nil, nil).
type DialogLookup interface {
	LookupDialog(ctx context.Context, id DialogID) (*DialogRecord, error)
}

// DialogInfo is the cached membership of a dialog. It is never mutated after
// it has been cached.
type DialogInfo struct {
	ID      DialogID         `json:"id"`
	Members []session.UserID `json:"members"`
}

// HasMember reports whether u belongs to the dialog.
func (d *DialogInfo) HasMember(u session.UserID) bool {
	return lo.Contains(d.Members, u)
}

type cachedDialog struct {
	info     *DialogInfo
	loadedAt time.Time
}

// dialogLookupTimeout bounds a shared load, which outlives any single caller.
const dialogLookupTimeout = 5 * time.Second

// Dialogs is a read-through membership cache. Concurrent misses for the same
// id share a single lookup. Entries live until Invalidate is called or, when
// a TTL is set, until they expire.
type Dialogs struct {
	lookup DialogLookup
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	cache map[DialogID]cachedDialog
	gen   map[DialogID]uint64 // bumped by Invalidate; stale loads skip the write
}

// NewDialogs creates a cache over lookup. A zero ttl keeps entries forever.
func NewDialogs(lookup DialogLookup, ttl time.Duration) *Dialogs {
	return &Dialogs{
		lookup: lookup,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[DialogID]cachedDialog),
		gen:    make(map[DialogID]uint64),
	}
}

// Info returns the membership of id, loading it on a cache miss. A dialog
// that does not exist yields ErrDialogNotFound and is not cached. A canceled
// ctx releases the caller without aborting the shared load.
func (d *Dialogs) Info(ctx context.Context, id DialogID) (*DialogInfo, error) {
	if info, ok := d.Cached(id); ok {
		return info, nil
	}

	ch := d.group.DoChan(id.String(), func() (any, error) {
		return d.load(context.WithoutCancel(ctx), id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DialogInfo), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dialogs) load(ctx context.Context, id DialogID) (*DialogInfo, error) {
	if info, ok := d.Cached(id); ok {
		return info, nil
	}
	d.mu.RLock()
	gen := d.gen[id]
	d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, dialogLookupTimeout)
	defer cancel()

	rec, err := d.lookup.LookupDialog(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup dialog %d: %w", id, err)
	}
	if rec == nil {
		return nil, ErrDialogNotFound
	}
	members, err := DecodeMembers(rec.Members)
	if err != nil {
		return nil, fmt.Errorf("dialog %d: %w", id, err)
	}
	info := &DialogInfo{ID: id, Members: members}

	d.mu.Lock()
	if d.gen[id] == gen {
		d.cache[id] = cachedDialog{info: info, loadedAt: d.now()}
	}
	d.mu.Unlock()
	return info, nil
}

// Cached returns a live cache entry without loading.
func (d *Dialogs) Cached(id DialogID) (*DialogInfo, bool) {
	d.mu.RLock()
	entry, ok := d.cache[id]
	d.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if d.ttl > 0 && d.now().Sub(entry.loadedAt) >= d.ttl {
		return nil, false
	}
	return entry.info, true
}

// Invalidate drops id from the cache so the next Info reloads it. A load
// already in flight still answers its callers but is not cached.
func (d *Dialogs) Invalidate(id DialogID) bool {
	d.group.Forget(id.String())
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen[id]++
	_, ok := d.cache[id]
	delete(d.cache, id)
	return ok
}

// Len returns the number of cached dialogs, expired entries included.
func (d *Dialogs) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache)
}

// DecodeMembers parses an encoded member list. Members may be integers or
// numeric strings; duplicates are dropped.
func DecodeMembers(raw string) ([]session.UserID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var items []any
	switch {
	case strings.HasPrefix(raw, "["):
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMembers, err)
		}
	case strings.HasPrefix(raw, "a:"):
		v, err := session.DecodeLegacyValue([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMembers, err)
		}
		switch val := v.(type) {
		case []any:
			items = val
		case map[string]any:
			keys := lo.Keys(val)
			slices.SortFunc(keys, compareKeys)
			items = lo.Map(keys, func(k string, _ int) any { return val[k] })
		}
	default:
		return nil, fmt.Errorf("%w: unsupported encoding", ErrMalformedMembers)
	}

	members := make([]session.UserID, 0, len(items))
	for _, item := range items {
		id, ok := memberID(item)
		if !ok {
			return nil, fmt.Errorf("%w: invalid member %v", ErrMalformedMembers, item)
		}
		members = append(members, id)
	}
	return lo.Uniq(members), nil
}

// compareKeys orders integer keys numerically and before string keys.
func compareKeys(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(ai, bi)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

func memberID(v any) (session.UserID, bool) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil || n <= 0 {
			return 0, false
		}
		return session.UserID(n), true
	case int64:
		if val > 0 {
			return session.UserID(val), true
		}
	case float64:
		if val > 0 && val == float64(int64(val)) {
			return session.UserID(int64(val)), true
		}
	case string:
		id, err := session.ParseUserID(val)
		return id, err == nil
	}
	return 0, false
}

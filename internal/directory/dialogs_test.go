package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avtomon/wsChat/internal/session"
)

type fakeLookup struct {
	mu      sync.Mutex
	rows    map[DialogID]string
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeLookup) LookupDialog(ctx context.Context, id DialogID) (*DialogRecord, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	members, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &DialogRecord{ID: id, Members: members}, nil
}

func (f *fakeLookup) set(id DialogID, members string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id] = members
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{rows: map[DialogID]string{42: "[1,2,3]"}}
}

func TestDialogs_LoadsOnceAndCaches(t *testing.T) {
	req := require.New(t)
	lookup := newFakeLookup()
	d := NewDialogs(lookup, 0)

	info, err := d.Info(context.Background(), 42)
	req.NoError(err)
	req.Equal([]session.UserID{1, 2, 3}, info.Members)

	again, err := d.Info(context.Background(), 42)
	req.NoError(err)
	req.Same(info, again)
	req.Equal(int32(1), lookup.calls.Load())
	req.True(info.HasMember(2))
	req.False(info.HasMember(9))
}

func TestDialogs_NotFoundIsNotCached(t *testing.T) {
	lookup := newFakeLookup()
	d := NewDialogs(lookup, 0)

	_, err := d.Info(context.Background(), 7)
	assert.ErrorIs(t, err, ErrDialogNotFound)
	assert.Zero(t, d.Len())

	lookup.set(7, "[5]")
	info, err := d.Info(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []session.UserID{5}, info.Members)
}

func TestDialogs_LookupErrorPropagates(t *testing.T) {
	lookup := newFakeLookup()
	boom := errors.New("db down")
	lookup.err = boom
	d := NewDialogs(lookup, 0)

	_, err := d.Info(context.Background(), 42)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, d.Len())
}

func TestDialogs_MalformedMembers(t *testing.T) {
	lookup := newFakeLookup()
	lookup.set(8, "not a list")
	d := NewDialogs(lookup, 0)

	_, err := d.Info(context.Background(), 8)
	assert.ErrorIs(t, err, ErrMalformedMembers)
}

func TestDialogs_ConcurrentMissesShareOneLookup(t *testing.T) {
	lookup := newFakeLookup()
	lookup.release = make(chan struct{})
	d := NewDialogs(lookup, 0)

	const n = 20
	var wg sync.WaitGroup
	results := make([]*DialogInfo, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := d.Info(context.Background(), 42)
			assert.NoError(t, err)
			results[i] = info
		}(i)
	}

	// Let the callers pile up on the in-flight lookup before releasing it.
	require.Eventually(t, func() bool { return lookup.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(lookup.release)
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.LessOrEqual(t, lookup.calls.Load(), int32(2))
}

func TestDialogs_Invalidate(t *testing.T) {
	lookup := newFakeLookup()
	d := NewDialogs(lookup, 0)

	_, err := d.Info(context.Background(), 42)
	require.NoError(t, err)

	lookup.set(42, "[1,2,3,4]")
	assert.True(t, d.Invalidate(42))
	assert.False(t, d.Invalidate(42))

	info, err := d.Info(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []session.UserID{1, 2, 3, 4}, info.Members)
	assert.Equal(t, int32(2), lookup.calls.Load())
}

func TestDialogs_CanceledCallerDoesNotFailSharedLoad(t *testing.T) {
	lookup := newFakeLookup()
	lookup.release = make(chan struct{})
	d := NewDialogs(lookup, 0)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := d.Info(ctx, 42)
		first <- err
	}()
	require.Eventually(t, func() bool { return lookup.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	type result struct {
		info *DialogInfo
		err  error
	}
	second := make(chan result, 1)
	go func() {
		info, err := d.Info(context.Background(), 42)
		second <- result{info, err}
	}()
	close(lookup.release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []session.UserID{1, 2, 3}, res.info.Members)
	assert.Equal(t, int32(1), lookup.calls.Load())
}

func TestDialogs_InvalidateDuringLoadSkipsCaching(t *testing.T) {
	lookup := newFakeLookup()
	lookup.release = make(chan struct{})
	d := NewDialogs(lookup, 0)

	done := make(chan *DialogInfo, 1)
	go func() {
		info, _ := d.Info(context.Background(), 42)
		done <- info
	}()
	require.Eventually(t, func() bool { return lookup.calls.Load() == 1 }, time.Second, time.Millisecond)

	assert.False(t, d.Invalidate(42))
	close(lookup.release)
	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, []session.UserID{1, 2, 3}, stale.Members)

	_, ok := d.Cached(42)
	assert.False(t, ok, "a load started before Invalidate must not be cached")

	lookup.set(42, "[1,2,3,4]")
	info, err := d.Info(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []session.UserID{1, 2, 3, 4}, info.Members)
	assert.Equal(t, int32(2), lookup.calls.Load())
}

func TestDialogs_TTLExpiry(t *testing.T) {
	lookup := newFakeLookup()
	d := NewDialogs(lookup, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }

	_, err := d.Info(context.Background(), 42)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, ok := d.Cached(42)
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	_, ok = d.Cached(42)
	assert.False(t, ok)

	_, err = d.Info(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int32(2), lookup.calls.Load())
}

func TestDecodeMembers(t *testing.T) {
	tests := []struct {
		raw  string
		want []session.UserID
	}{
		{raw: "[1, 2, 3]", want: []session.UserID{1, 2, 3}},
		{raw: `["4", "5"]`, want: []session.UserID{4, 5}},
		{raw: "[1, 1, 2]", want: []session.UserID{1, 2}},
		{raw: `a:2:{i:0;i:10;i:1;s:2:"11";}`, want: []session.UserID{10, 11}},
		{raw: `a:2:{s:1:"a";i:3;s:1:"b";i:4;}`, want: []session.UserID{3, 4}},
		{raw: `a:3:{i:10;i:7;i:2;i:8;i:1;i:9;}`, want: []session.UserID{9, 8, 7}},
		{raw: "", want: nil},
	}
	for _, tt := range tests {
		got, err := DecodeMembers(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	for _, bad := range []string{"1,2", "[0]", `["x"]`, "[1.5]", "[", `a:1:{i:0;b:1;}`, "a:9223372036854775807:{}", "a:2000000000:{}", `a:1:{i:0;s:9223372036854775807:"1";}`} {
		_, err := DecodeMembers(bad)
		assert.ErrorIs(t, err, ErrMalformedMembers, bad)
	}
}

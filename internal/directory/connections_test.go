package directory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avtomon/wsChat/internal/session"
)

type stubConn struct{ id string }

func (c *stubConn) ID() string             { return c.id }
func (c *stubConn) Send(data []byte) error { return nil }
func (c *stubConn) Close() error           { return nil }

func sess(u session.UserID) *session.Session {
	return &session.Session{ID: fmt.Sprintf("sid-%d", u), UserID: u}
}

func TestConnections_RegisterLookup(t *testing.T) {
	req := require.New(t)
	c := NewConnections()
	conn := &stubConn{id: "c1"}

	req.Nil(c.Register(1, sess(1), conn))

	u, ok := c.LookupUser(conn)
	req.True(ok)
	req.Equal(session.UserID(1), u)

	got, ok := c.ConnFor(1)
	req.True(ok)
	req.Same(conn, got)

	s, ok := c.Session(1)
	req.True(ok)
	req.Equal(session.UserID(1), s.UserID)
	req.Equal(1, c.Len())
}

func TestConnections_UnregisterRemovesBothDirections(t *testing.T) {
	req := require.New(t)
	c := NewConnections()
	conn := &stubConn{id: "c1"}
	c.Register(1, sess(1), conn)

	u, ok := c.Unregister(conn)
	req.True(ok)
	req.Equal(session.UserID(1), u)

	_, ok = c.LookupUser(conn)
	req.False(ok)
	_, ok = c.ConnFor(1)
	req.False(ok)
	_, ok = c.Session(1)
	req.False(ok)
	req.Zero(c.Len())

	_, ok = c.Unregister(conn)
	req.False(ok, "second unregister is a no-op")
}

func TestConnections_ReRegisterSupersedes(t *testing.T) {
	req := require.New(t)
	c := NewConnections()
	old := &stubConn{id: "old"}
	fresh := &stubConn{id: "new"}

	c.Register(1, sess(1), old)
	superseded := c.Register(1, sess(1), fresh)
	req.Same(old, superseded)

	_, ok := c.LookupUser(old)
	req.False(ok, "superseded connection loses its reverse entry")

	// Closing the old socket later must not evict the new one.
	_, ok = c.Unregister(old)
	req.False(ok)
	got, ok := c.ConnFor(1)
	req.True(ok)
	req.Same(fresh, got)
}

func TestConnections_RegisterSameConnTwice(t *testing.T) {
	c := NewConnections()
	conn := &stubConn{id: "c1"}
	c.Register(1, sess(1), conn)
	assert.Nil(t, c.Register(1, sess(1), conn))
	assert.Equal(t, 1, c.Len())
}

func TestConnections_ConnsFor(t *testing.T) {
	c := NewConnections()
	c.Register(1, sess(1), &stubConn{id: "a"})
	c.Register(3, sess(3), &stubConn{id: "b"})

	online, offline := c.ConnsFor([]session.UserID{1, 2, 3, 4})
	assert.Len(t, online, 2)
	assert.Contains(t, online, session.UserID(1))
	assert.Contains(t, online, session.UserID(3))
	assert.Equal(t, []session.UserID{2, 4}, offline)
}

func TestConnections_Snapshot(t *testing.T) {
	c := NewConnections()
	c.Register(5, sess(5), &stubConn{id: "e"})
	c.Register(2, sess(2), &stubConn{id: "b"})

	assert.Equal(t, []Entry{{UserID: 2, ConnID: "b"}, {UserID: 5, ConnID: "e"}}, c.Snapshot())
}

func TestConnections_ConcurrentAccess(t *testing.T) {
	c := NewConnections()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(u session.UserID) {
			defer wg.Done()
			conn := &stubConn{id: fmt.Sprintf("c%d", u)}
			c.Register(u, sess(u), conn)
			c.ConnsFor([]session.UserID{u, u + 1})
			if u%2 == 0 {
				c.Unregister(conn)
			}
		}(session.UserID(i))
	}
	wg.Wait()

	assert.Equal(t, 25, c.Len())
	for _, e := range c.Snapshot() {
		_, hasSession := c.Session(e.UserID)
		assert.True(t, hasSession)
	}
}

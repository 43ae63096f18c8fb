// Package directory keeps the relay's shared lookup state: which connection
// belongs to which user, and which users belong to which dialog.
package directory

import (
	"sort"
	"sync"

	"github.com/avtomon/wsChat/internal/session"
)

// Conn is a live transport endpoint. It is owned by the transport layer; the
// directory only holds references to it.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Entry describes one registered connection.
type Entry struct {
	UserID session.UserID `json:"user_id"`
	ConnID string         `json:"conn_id"`
}

// Connections maps users to their single live connection and session.
// The forward map, the reverse map and the session table always share one
// key set; all three are guarded by mu.
type Connections struct {
	mu       sync.RWMutex
	byUser   map[session.UserID]Conn
	byConn   map[string]session.UserID
	sessions map[session.UserID]*session.Session
}

// NewConnections returns an empty directory.
func NewConnections() *Connections {
	return &Connections{
		byUser:   make(map[session.UserID]Conn),
		byConn:   make(map[string]session.UserID),
		sessions: make(map[session.UserID]*session.Session),
	}
}

// Register binds conn and sess to userID, replacing any previous binding.
// If another connection was registered for the same user it is returned so the
// caller can dispose of it; its reverse entry is dropped here.
func (c *Connections) Register(userID session.UserID, sess *session.Session, conn Conn) (superseded Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.byUser[userID]; ok && prev.ID() != conn.ID() {
		delete(c.byConn, prev.ID())
		superseded = prev
	}
	c.byUser[userID] = conn
	c.byConn[conn.ID()] = userID
	c.sessions[userID] = sess
	return superseded
}

// LookupUser returns the user registered for conn.
func (c *Connections) LookupUser(conn Conn) (session.UserID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byConn[conn.ID()]
	return id, ok
}

// Unregister removes conn and its user's entries. It is a no-op when conn is
// unknown, including when it was superseded by a newer connection.
func (c *Connections) Unregister(conn Conn) (session.UserID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byConn[conn.ID()]
	if !ok {
		return 0, false
	}
	delete(c.byConn, conn.ID())
	delete(c.byUser, id)
	delete(c.sessions, id)
	return id, true
}

// ConnFor returns the live connection of userID.
func (c *Connections) ConnFor(userID session.UserID) (Conn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.byUser[userID]
	return conn, ok
}

// Session returns the live session of userID.
func (c *Connections) Session(userID session.UserID) (*session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[userID]
	return s, ok
}

// ConnsFor splits users into those with a live connection and those without,
// preserving the input order of the offline slice.
func (c *Connections) ConnsFor(users []session.UserID) (online map[session.UserID]Conn, offline []session.UserID) {
	online = make(map[session.UserID]Conn, len(users))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, u := range users {
		if conn, ok := c.byUser[u]; ok {
			online[u] = conn
		} else {
			offline = append(offline, u)
		}
	}
	return online, offline
}

// Snapshot lists all registered connections ordered by user id.
func (c *Connections) Snapshot() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.byUser))
	for u, conn := range c.byUser {
		out = append(out, Entry{UserID: u, ConnID: conn.ID()})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of registered users.
func (c *Connections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUser)
}

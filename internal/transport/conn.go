package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ErrConnClosed is returned by Send after the connection was closed.
var ErrConnClosed = errors.New("connection closed")

// wsConn is one accepted WebSocket. All writes go through mu.
type wsConn struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
	remoteAddr   string

	mu     sync.Mutex
	closed bool

	inbound *rate.Limiter // nil means unlimited
}

func newWSConn(conn *websocket.Conn, writeTimeout time.Duration, perSecond float64, burst int) *wsConn {
	c := &wsConn{
		id:           uuid.New().String(),
		conn:         conn,
		writeTimeout: writeTimeout,
		remoteAddr:   conn.RemoteAddr().String(),
	}
	if perSecond > 0 {
		c.inbound = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
	return c
}

func (c *wsConn) ID() string { return c.id }

// Send writes one text frame, bounded by the write timeout.
func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and closes the socket. Closing twice is a
// no-op.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsControlTimeout))
	c.mu.Unlock()
	return c.conn.Close()
}

// allowMessage takes one token from the inbound limiter.
func (c *wsConn) allowMessage() bool {
	return c.inbound == nil || c.inbound.Allow()
}

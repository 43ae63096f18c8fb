// Package transport accepts chat WebSocket connections and feeds their
// lifecycle and message events to a Handler.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avtomon/wsChat/internal/directory"
	"github.com/avtomon/wsChat/internal/metrics"
)

// Handler receives connection events. Events of one connection are
// delivered sequentially.
type Handler interface {
	Open(ctx context.Context, conn directory.Conn, query url.Values) bool
	HandleMessage(ctx context.Context, conn directory.Conn, raw []byte)
	Close(conn directory.Conn)
	Fail(conn directory.Conn, err error)
}

// Options configures the Server.
type Options struct {
	AllowedOrigins    []string
	MaxMessageBytes   int64         // read limit per frame
	WriteTimeout      time.Duration // bounds every outbound frame
	MessagesPerSecond float64       // inbound token bucket rate, 0 disables
	MessageBurst      int
	// SessionParam is copied from a cookie into the handshake query when the
	// query does not carry it.
	SessionParam string

	PingInterval time.Duration // default 30s
	PongWait     time.Duration // default 60s
}

// Server upgrades HTTP requests and runs one read loop per connection.
type Server struct {
	handler  Handler
	upgrader websocket.Upgrader
	opts     Options
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

// NewServer creates a Server.
func NewServer(handler Handler, logger *slog.Logger, opts Options) *Server {
	if opts.PingInterval == 0 {
		opts.PingInterval = wsPingInterval
	}
	if opts.PongWait == 0 {
		opts.PongWait = wsPongWait
	}
	return &Server{
		handler:  handler,
		upgrader: makeUpgrader(opts.AllowedOrigins),
		opts:     opts,
		logger:   logger.With("component", "transport"),
		conns:    make(map[*wsConn]struct{}),
	}
}

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	query := handshakeQuery(req, s.opts.SessionParam)

	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	if s.opts.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.opts.MaxMessageBytes)
	}

	c := newWSConn(ws, s.opts.WriteTimeout, s.opts.MessagesPerSecond, s.opts.MessageBurst)
	s.track(c)
	defer s.untrack(c)
	defer func() { _ = c.Close() }()

	stopKeepalive := startWSKeepalive(ws, &c.mu, s.opts.PingInterval, s.opts.PongWait)
	defer stopKeepalive()

	// The hijacked request context does not outlive the handler, but routing
	// must not be cut short by a client hanging up mid-delivery.
	ctx := context.WithoutCancel(req.Context())

	s.logger.Debug("client connected", "conn_id", c.ID(), "remote", c.remoteAddr)
	if !s.handler.Open(ctx, c, query) {
		return
	}
	defer s.handler.Close(c)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if isUnexpectedClose(err) {
				s.handler.Fail(c, err)
			} else {
				s.logger.Debug("client read ended", "conn_id", c.ID(), "error", err)
			}
			return
		}

		if !c.allowMessage() {
			metrics.RateLimitHits.WithLabelValues("message").Inc()
			s.logger.Debug("client message rate limited", "conn_id", c.ID())
			continue
		}

		s.handler.HandleMessage(ctx, c, raw)
	}
}

// Len returns the number of open WebSockets.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll closes every open WebSocket. Hijacked connections are not closed
// by http.Server.Shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) track(c *wsConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// handshakeQuery returns the request query, falling back to a cookie for the
// session parameter.
func handshakeQuery(req *http.Request, param string) url.Values {
	query := req.URL.Query()
	if param == "" || query.Get(param) != "" {
		return query
	}
	if cookie, err := req.Cookie(param); err == nil && cookie.Value != "" {
		query.Set(param, cookie.Value)
	}
	return query
}

func isUnexpectedClose(err error) bool {
	if errors.Is(err, websocket.ErrReadLimit) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return websocket.IsUnexpectedCloseError(err,
			websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
	}
	// Network errors after a local Close are expected.
	return false
}

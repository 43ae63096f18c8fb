package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avtomon/wsChat/internal/directory"
)

type recordingHandler struct {
	accept bool

	mu       sync.Mutex
	queries  []url.Values
	messages []string
	closed   []string
	failed   []error

	closedCh chan struct{}
	failedCh chan struct{}
}

func newRecordingHandler(accept bool) *recordingHandler {
	return &recordingHandler{
		accept:   accept,
		closedCh: make(chan struct{}, 8),
		failedCh: make(chan struct{}, 8),
	}
}

func (h *recordingHandler) Open(_ context.Context, conn directory.Conn, query url.Values) bool {
	h.mu.Lock()
	h.queries = append(h.queries, query)
	h.mu.Unlock()
	if !h.accept {
		_ = conn.Send([]byte(`{"type":"error"}`))
		_ = conn.Close()
	}
	return h.accept
}

// HandleMessage echoes every frame back to its sender.
func (h *recordingHandler) HandleMessage(_ context.Context, conn directory.Conn, raw []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, string(raw))
	h.mu.Unlock()
	_ = conn.Send(raw)
}

func (h *recordingHandler) Close(conn directory.Conn) {
	h.mu.Lock()
	h.closed = append(h.closed, conn.ID())
	h.mu.Unlock()
	h.closedCh <- struct{}{}
}

func (h *recordingHandler) Fail(conn directory.Conn, err error) {
	h.mu.Lock()
	h.failed = append(h.failed, err)
	h.mu.Unlock()
	_ = conn.Close()
	h.failedCh <- struct{}{}
}

func (h *recordingHandler) messageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func startServer(t *testing.T, h Handler, opts Options) (*Server, string) {
	t.Helper()
	srv := NewServer(h, testLogger(), opts)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, wsURL string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestServerRoundTrip(t *testing.T) {
	req := require.New(t)
	h := newRecordingHandler(true)
	_, wsURL := startServer(t, h, Options{SessionParam: "PHPSESSID"})

	conn := dial(t, wsURL+"?PHPSESSID=abc", nil)
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"dialogId":1,"text":"hi"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	req.NoError(err)
	req.JSONEq(`{"dialogId":1,"text":"hi"}`, string(data))

	h.mu.Lock()
	req.Len(h.queries, 1)
	req.Equal("abc", h.queries[0].Get("PHPSESSID"))
	h.mu.Unlock()

	req.NoError(conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	waitFor(t, h.closedCh)

	h.mu.Lock()
	defer h.mu.Unlock()
	req.Empty(h.failed, "a normal close is not a transport error")
}

func TestServerCookieFallback(t *testing.T) {
	h := newRecordingHandler(true)
	_, wsURL := startServer(t, h, Options{SessionParam: "PHPSESSID"})

	header := http.Header{}
	header.Set("Cookie", "PHPSESSID=from-cookie")
	conn := dial(t, wsURL, header)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{}`)))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, "from-cookie", h.queries[0].Get("PHPSESSID"))
}

func TestServerRejectedOpen(t *testing.T) {
	req := require.New(t)
	h := newRecordingHandler(false)
	srv, wsURL := startServer(t, h, Options{})

	conn := dial(t, wsURL, nil)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, data, err := conn.ReadMessage()
	req.NoError(err)
	req.JSONEq(`{"type":"error"}`, string(data))

	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	req.Eventually(func() bool { return srv.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	req.Empty(h.closed, "rejected connections never reach Close")
}

func TestServerReadLimitFails(t *testing.T) {
	h := newRecordingHandler(true)
	_, wsURL := startServer(t, h, Options{MaxMessageBytes: 16})

	conn := dial(t, wsURL, nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))

	waitFor(t, h.failedCh)
	waitFor(t, h.closedCh)
	assert.Equal(t, 0, h.messageCount())
}

func TestServerRateLimit(t *testing.T) {
	h := newRecordingHandler(true)
	_, wsURL := startServer(t, h, Options{MessagesPerSecond: 0.001, MessageBurst: 2})

	conn := dial(t, wsURL, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{}`)))
	}
	// Two echoes arrive; the rest is dropped.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		_, _, err := conn.ReadMessage()
		require.NoError(t, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 2, h.messageCount())
}

func TestServerCloseAll(t *testing.T) {
	h := newRecordingHandler(true)
	srv, wsURL := startServer(t, h, Options{})

	conn := dial(t, wsURL, nil)
	require.Eventually(t, func() bool { return srv.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.CloseAll()
	waitFor(t, h.closedCh)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestMakeUpgraderOrigins(t *testing.T) {
	up := makeUpgrader([]string{"https://chat.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, up.CheckOrigin(r), "requests without Origin are allowed")

	r.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, up.CheckOrigin(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, up.CheckOrigin(r))

	all := makeUpgrader([]string{"*"})
	assert.True(t, all.CheckOrigin(r))
}

func TestHandshakeQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?PHPSESSID=q", nil)
	r.AddCookie(&http.Cookie{Name: "PHPSESSID", Value: "c"})
	assert.Equal(t, "q", handshakeQuery(r, "PHPSESSID").Get("PHPSESSID"), "query wins over cookie")

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, handshakeQuery(r, "PHPSESSID").Get("PHPSESSID"))
}

func TestConnSendAfterClose(t *testing.T) {
	h := newRecordingHandler(true)
	var captured directory.Conn
	var mu sync.Mutex
	opened := make(chan struct{})
	wrapped := &openHook{recordingHandler: h, onOpen: func(c directory.Conn) {
		mu.Lock()
		captured = c
		mu.Unlock()
		close(opened)
	}}
	_, wsURL := startServer(t, wrapped, Options{})

	dial(t, wsURL, nil)
	waitFor(t, opened)

	mu.Lock()
	c := captured
	mu.Unlock()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "double close is a no-op")
	assert.ErrorIs(t, c.Send([]byte("late")), ErrConnClosed)
}

type openHook struct {
	*recordingHandler
	onOpen func(directory.Conn)
}

func (o *openHook) Open(ctx context.Context, conn directory.Conn, query url.Values) bool {
	ok := o.recordingHandler.Open(ctx, conn, query)
	o.onOpen(conn)
	return ok
}

// Package relay authorizes and fans out chat messages between the
// connections held in the directory, and reports routing failures to the
// narrowest audience they concern.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/avtomon/wsChat/internal/directory"
	"github.com/avtomon/wsChat/internal/metrics"
	"github.com/avtomon/wsChat/internal/sanitize"
	"github.com/avtomon/wsChat/internal/session"
	"github.com/avtomon/wsChat/pkg/protocol"
)

// Authenticator resolves a handshake query to a session.
type Authenticator interface {
	Authenticate(ctx context.Context, query url.Values) (*session.Session, error)
}

// Options configures the Router. Nil hooks are replaced by no-op variants.
type Options struct {
	HookTimeout    time.Duration // default 5s
	DialogCacheTTL time.Duration // 0 keeps dialogs cached for the process lifetime
	Sink           PersistenceSink
	Observer       SendObserver
	LogSink        LogSink
	RecentEvents   int // size of the admin activity ring, default 50
}

// Router owns the connection and dialog directories and routes every inbound
// message through authorization, sanitization, fan-out and persistence.
type Router struct {
	auth      Authenticator
	conns     *directory.Connections
	dialogs   *directory.Dialogs
	sanitizer *sanitize.Sanitizer
	reporter  *Reporter
	sink      PersistenceSink
	observer  SendObserver
	logger    *slog.Logger
	activity  *activity

	hookTimeout time.Duration
}

// New creates a Router.
func New(auth Authenticator, lookup directory.DialogLookup, sanitizer *sanitize.Sanitizer, logger *slog.Logger, opts Options) *Router {
	if opts.HookTimeout == 0 {
		opts.HookTimeout = 5 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.LogSink == nil {
		opts.LogSink = SlogSink{Logger: logger}
	}

	conns := directory.NewConnections()
	dialogs := directory.NewDialogs(lookup, opts.DialogCacheTTL)
	return &Router{
		auth:        auth,
		conns:       conns,
		dialogs:     dialogs,
		sanitizer:   sanitizer,
		reporter:    NewReporter(conns, dialogs, opts.LogSink, logger),
		sink:        opts.Sink,
		observer:    opts.Observer,
		logger:      logger.With("component", "router"),
		activity:    newActivity(opts.RecentEvents),
		hookTimeout: opts.HookTimeout,
	}
}

// Connections exposes the connection directory for read-only admin use.
func (r *Router) Connections() *directory.Connections { return r.conns }

// Dialogs exposes the dialog cache for admin use.
func (r *Router) Dialogs() *directory.Dialogs { return r.dialogs }

// Reporter returns the router's error reporter.
func (r *Router) Reporter() *Reporter { return r.reporter }

// Sanitizer returns the router's sanitizer.
func (r *Router) Sanitizer() *sanitize.Sanitizer { return r.sanitizer }

// Recent returns the latest routing outcomes, newest first.
func (r *Router) Recent() []protocol.RecentEvent { return r.activity.list() }

// Open authenticates a new connection and registers it. On failure the
// connection is notified and closed and false is returned. A previous
// connection of the same user is notified and closed.
func (r *Router) Open(ctx context.Context, conn directory.Conn, query url.Values) bool {
	sess, err := r.auth.Authenticate(ctx, query)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(authReason(err)).Inc()
		r.logger.Info("handshake rejected", "conn_id", conn.ID(), "error", err)
		r.reporter.Report(ctx, connError(KindAuthentication, conn, authMessage(err), err))
		_ = conn.Close()
		return false
	}

	superseded := r.conns.Register(sess.UserID, sess, conn)
	metrics.ConnectionsActive.Set(float64(r.conns.Len()))
	r.logger.Info("connection authenticated",
		"conn_id", conn.ID(),
		"user_id", int64(sess.UserID),
		"session", session.Fingerprint(sess.ID),
	)

	if superseded != nil {
		metrics.ConnectionsSuperseded.Inc()
		r.logger.Info("connection superseded", "conn_id", superseded.ID(), "user_id", int64(sess.UserID))
		r.reporter.Report(ctx, connError(KindAuthentication, superseded, "session was opened in another connection", nil))
		_ = superseded.Close()
	}
	return true
}

// Close unregisters conn after the transport reports it closed.
func (r *Router) Close(conn directory.Conn) {
	userID, ok := r.conns.Unregister(conn)
	metrics.ConnectionsActive.Set(float64(r.conns.Len()))
	if ok {
		r.logger.Info("connection closed", "conn_id", conn.ID(), "user_id", int64(userID))
	}
}

// Fail handles a transport error on conn by closing it. Unregistration
// follows through Close once the transport observes the close.
func (r *Router) Fail(conn directory.Conn, err error) {
	r.logger.Warn("transport error", "conn_id", conn.ID(), "error", err)
	_ = conn.Close()
}

// HandleMessage routes raw and reports any failure.
func (r *Router) HandleMessage(ctx context.Context, conn directory.Conn, raw []byte) {
	cerr := r.Route(ctx, conn, raw)
	if cerr == nil {
		return
	}
	metrics.MessagesRejected.WithLabelValues(cerr.Kind.String()).Inc()
	ev := protocol.RecentEvent{Kind: cerr.Kind.String(), Detail: cerr.Message}
	if userID, ok := r.conns.LookupUser(conn); ok {
		ev.UserID = int64(userID)
	}
	r.activity.add(ev)
	r.reporter.Report(ctx, cerr)
}

// Route validates raw and delivers it. The checks run in a fixed order and
// each failure carries the scope known at that point.
func (r *Router) Route(ctx context.Context, conn directory.Conn, raw []byte) *ChatError {
	msg, err := DecodeMessage(raw)
	if err != nil {
		return connError(KindValidation, conn, "message must be a JSON object", err)
	}

	userID, ok := r.conns.LookupUser(conn)
	if !ok {
		return connError(KindAuthentication, conn, "connection is not authenticated", nil)
	}
	sess, ok := r.conns.Session(userID)
	if !ok {
		return connError(KindAuthentication, conn, "session is no longer valid", nil)
	}

	if err := msg.DialogIDError(); err != nil {
		return connError(KindValidation, conn, "dialog id is required", err)
	}

	start := time.Now()
	info, err := r.dialogs.Info(ctx, msg.DialogID)
	metrics.DialogLookupLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, directory.ErrDialogNotFound) {
			r.logger.Warn("dialog lookup failed", "dialog_id", int64(msg.DialogID), "error", err)
		}
		return connError(KindAuthorization, conn, fmt.Sprintf("dialog %d not found", msg.DialogID), err)
	}
	if !info.HasMember(userID) {
		return connError(KindAuthorization, conn, fmt.Sprintf("no permission to write to dialog %d", msg.DialogID), nil)
	}

	msg.From = sess
	msg.Text = r.sanitizer.Sanitize(msg.Text)
	if msg.Text == "" {
		return connError(KindValidation, conn, "message text is empty", nil)
	}

	return r.deliver(ctx, conn, info, msg)
}

func (r *Router) deliver(ctx context.Context, conn directory.Conn, info *directory.DialogInfo, msg *ChatMessage) *ChatError {
	if err := r.runHook(ctx, func(ctx context.Context) error { return r.observer.BeforeSend(ctx, msg) }); err != nil {
		metrics.HookFailures.WithLabelValues("before_send").Inc()
		return deliveryError(fmt.Sprintf("before-send hook failed for dialog %d", info.ID), err)
	}
	// The hook may have rewritten the text.
	msg.Text = r.sanitizer.Sanitize(msg.Text)
	if msg.Text == "" {
		return connError(KindValidation, conn, "message text is empty", nil)
	}

	data, err := msg.Encode()
	if err != nil {
		return deliveryError(fmt.Sprintf("encode message for dialog %d", info.ID), err)
	}

	online, _ := r.conns.ConnsFor(info.Members)
	var unread []session.UserID
	for _, member := range info.Members {
		c, ok := online[member]
		if !ok {
			unread = append(unread, member)
			continue
		}
		if err := c.Send(data); err != nil {
			metrics.SendFailures.Inc()
			r.logger.Warn("send failed",
				"dialog_id", int64(info.ID),
				"user_id", int64(member),
				"conn_id", c.ID(),
				"error", err,
			)
			unread = append(unread, member)
		}
	}

	ev := protocol.RecentEvent{DialogID: int64(info.ID), UserID: int64(msg.SenderID())}
	if len(unread) == 0 {
		metrics.MessagesRouted.WithLabelValues("delivered").Inc()
		ev.Kind = "delivered"
		if err := r.runHook(ctx, func(ctx context.Context) error { return r.sink.SaveDelivered(ctx, msg) }); err != nil {
			metrics.HookFailures.WithLabelValues("save_delivered").Inc()
			return deliveryError(fmt.Sprintf("saving delivered message for dialog %d failed", info.ID), err)
		}
	} else {
		metrics.MessagesRouted.WithLabelValues("unread").Inc()
		ev.Kind = "unread"
		ev.Detail = fmt.Sprintf("%d unread", len(unread))
		if err := r.runHook(ctx, func(ctx context.Context) error { return r.sink.SaveUnread(ctx, msg, unread) }); err != nil {
			metrics.HookFailures.WithLabelValues("save_unread").Inc()
			return deliveryError(fmt.Sprintf("saving unread message for dialog %d failed", info.ID), err)
		}
	}
	r.activity.add(ev)

	if err := r.runHook(ctx, func(ctx context.Context) error { return r.observer.AfterSend(ctx, msg) }); err != nil {
		metrics.HookFailures.WithLabelValues("after_send").Inc()
		return deliveryError(fmt.Sprintf("after-send hook failed for dialog %d", info.ID), err)
	}
	return nil
}

// runHook bounds fn by the hook timeout and turns a panic into an error.
func (r *Router) runHook(ctx context.Context, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.hookTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func authReason(err error) string {
	switch {
	case errors.Is(err, session.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, session.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, session.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, session.ErrMalformedSession):
		return "malformed"
	case errors.Is(err, session.ErrNoIdentity):
		return "no_identity"
	}
	return "other"
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrMissingToken):
		return "session id is required"
	case errors.Is(err, session.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, session.ErrStoreUnavailable):
		return "session store is unavailable"
	case errors.Is(err, session.ErrMalformedSession):
		return "session data is malformed"
	case errors.Is(err, session.ErrNoIdentity):
		return "session is not authenticated"
	}
	return "authentication failed"
}

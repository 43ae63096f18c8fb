// Package hub is the main orchestrator that ties all relay components together.
package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avtomon/wsChat/internal/api"
	"github.com/avtomon/wsChat/internal/auth"
	"github.com/avtomon/wsChat/internal/config"
	"github.com/avtomon/wsChat/internal/logsink"
	"github.com/avtomon/wsChat/internal/metrics"
	"github.com/avtomon/wsChat/internal/relay"
	"github.com/avtomon/wsChat/internal/sanitize"
	"github.com/avtomon/wsChat/internal/session"
	"github.com/avtomon/wsChat/internal/store"
	"github.com/avtomon/wsChat/internal/transport"
)

// Hub is the main relay process.
type Hub struct {
	cfg          *config.Config
	store        store.Store
	sessions     session.Store
	authProvider auth.Provider
	router       *relay.Router
	ws           *transport.Server
	api          *api.Server
	logger       *slog.Logger

	closers []io.Closer
}

// New creates a new hub from configuration. ctx bounds the startup
// connections and the background JWKS refresh.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Hub, error) {
	h := &Hub{cfg: cfg, logger: logger.With("component", "hub")}

	// Initialize storage.
	db, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	h.store = db

	sessions, err := newSessionStore(ctx, cfg.Session)
	if err != nil {
		h.closeAll()
		return nil, fmt.Errorf("init session store: %w", err)
	}
	h.sessions = sessions
	if c, ok := sessions.(io.Closer); ok {
		h.closers = append(h.closers, c)
	}

	authProvider, err := auth.NewProvider(ctx, cfg.Auth)
	if err != nil {
		h.closeAll()
		return nil, fmt.Errorf("init auth provider: %w", err)
	}
	h.authProvider = authProvider

	var logSink relay.LogSink = relay.SlogSink{Logger: logger}
	if cfg.Logging.ErrorLog != "" {
		f, err := logsink.Open(cfg.Logging.ErrorLog)
		if err != nil {
			h.closeAll()
			return nil, err
		}
		h.closers = append(h.closers, f)
		logSink = f
	}

	authn := session.NewAuthenticator(sessions, logger, session.Options{
		QueryParam:    cfg.Session.QueryParam,
		KeyNamespace:  cfg.Session.KeyNamespace,
		UserField:     cfg.Session.UserField,
		LookupTimeout: cfg.Session.LookupTimeout.Duration,
		PublicFields:  cfg.Session.PublicFields,
	})

	persistence := NewPersistence(db, logger)
	h.router = relay.New(authn, persistence, sanitize.New(cfg.Relay.AllowedTags), logger, relay.Options{
		HookTimeout:    cfg.Relay.HookTimeout.Duration,
		DialogCacheTTL: cfg.Relay.DialogCacheTTL.Duration,
		Sink:           persistence,
		Observer:       persistence,
		LogSink:        logSink,
		RecentEvents:   cfg.Relay.RecentEvents,
	})

	h.ws = transport.NewServer(h.router, logger, transport.Options{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		MaxMessageBytes:   cfg.Server.MaxMessageBytes,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		MessageBurst:      cfg.Server.MessageBurst,
		SessionParam:      authn.QueryParam(),
	})

	h.api = api.NewServer(db, authn, authProvider, h.router, h.ws, cfg, logger)

	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			logger.Warn("CORS allowed_origins contains wildcard '*', restrict to specific origins in production")
			break
		}
	}
	if cfg.Session.Backend == "memory" {
		logger.Warn("session backend is in-memory, handshakes will only succeed for sessions set in this process")
	}

	return h, nil
}

func newSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "memory":
		return session.NewMemoryStore(), nil
	case "redis", "":
		return session.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unsupported session backend: %q", cfg.Backend)
	}
}

// Handler returns the HTTP handler serving the WebSocket endpoint and the API.
func (h *Hub) Handler() http.Handler {
	return h.api.Handler()
}

// Run starts the HTTP server and blocks until the context is canceled.
func (h *Hub) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.cfg.Server.Addr,
		Handler:           h.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start rate limiter cleanup tasks.
	h.api.StartBackgroundTasks(ctx)

	// Start retention purger.
	if h.cfg.Storage.Retention.Duration > 0 {
		go h.runRetentionPurger(ctx, h.cfg.Storage.Retention.Duration, time.Hour)
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("relay listening", "addr", h.cfg.Server.Addr)
		if h.cfg.Server.TLSCert != "" && h.cfg.Server.TLSKey != "" {
			errCh <- srv.ListenAndServeTLS(h.cfg.Server.TLSCert, h.cfg.Server.TLSKey)
		} else {
			h.logger.Warn("TLS not configured, running without encryption (development only)")
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		h.logger.Info("shutting down relay gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		} else {
			h.logger.Info("http server stopped gracefully")
		}

		// Hijacked WebSockets are not closed by Shutdown.
		h.logger.Info("closing websocket connections", "count", h.ws.Len())
		h.ws.CloseAll()

		h.closeAll()
		h.logger.Info("shutdown complete")
		return ctx.Err()

	case err := <-errCh:
		h.ws.CloseAll()
		h.closeAll()
		return err
	}
}

// Close releases the store and session store without running the server.
func (h *Hub) Close() {
	h.ws.CloseAll()
	h.closeAll()
}

func (h *Hub) closeAll() {
	if h.store != nil {
		h.logger.Info("closing store")
		_ = h.store.Close()
	}
	for _, c := range h.closers {
		_ = c.Close()
	}
}

func (h *Hub) runRetentionPurger(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.purgeOnce(ctx, retention)
		}
	}
}

func (h *Hub) purgeOnce(ctx context.Context, retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	n, err := h.store.PurgeOldMessages(ctx, cutoff)
	if err != nil {
		h.logger.Warn("retention purge: messages failed", "error", err)
		return
	}
	if n > 0 {
		metrics.MessagesPurged.Add(float64(n))
		h.logger.Info("retention purge: deleted old messages", "count", n)
	}
}

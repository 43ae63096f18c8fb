// Package api provides the HTTP surface of the relay: the WebSocket
// endpoint, health and metrics probes and the admin API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"github.com/avtomon/wsChat/internal/auth"
	"github.com/avtomon/wsChat/internal/config"
	"github.com/avtomon/wsChat/internal/directory"
	"github.com/avtomon/wsChat/internal/relay"
	"github.com/avtomon/wsChat/internal/session"
	"github.com/avtomon/wsChat/internal/store"
	"github.com/avtomon/wsChat/pkg/protocol"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	store         store.Store
	sessions      Pinger
	authProvider  auth.Provider
	router        *relay.Router
	logger        *slog.Logger
	mux           *chi.Mux
	startTime     time.Time
	adminRole     string
	storageDriver string
	upgradeRL     *rateLimiter
	rl            *rateLimiter
}

// NewServer creates a new API server. ws serves WebSocket upgrades on /ws.
func NewServer(s store.Store, sessions Pinger, ap auth.Provider, rt *relay.Router, ws http.Handler, cfg *config.Config, logger *slog.Logger) *Server {
	srv := &Server{
		store:         s,
		sessions:      sessions,
		authProvider:  ap,
		router:        rt,
		logger:        logger.With("component", "api"),
		startTime:     time.Now(),
		adminRole:     cfg.Auth.AdminRole,
		storageDriver: cfg.Storage.Driver,
		upgradeRL:     newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		rl:            newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)
	mux.Use(requestLogger(srv.logger))
	mux.Use(securityHeadersMiddleware)
	mux.Use(makeCORSMiddleware(cfg.Server.AllowedOrigins))

	// WebSocket route (auth handled by the relay on open). Long-lived, so it
	// stays out of the request latency histogram.
	mux.With(ipRateLimitMiddleware(srv.upgradeRL, "upgrade")).Get("/ws", ws.ServeHTTP)

	mux.Group(func(r chi.Router) {
		r.Use(metricsMiddleware)

		// Health check routes (unauthenticated)
		r.Get("/healthz", srv.handleHealthz)
		r.Get("/readyz", srv.handleReadyz)
		r.Handle("/metrics", promhttp.Handler())

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(srv.authMiddleware)
			r.Use(rateLimitMiddleware(srv.rl))
			r.Use(srv.adminMiddleware)

			r.Get("/api/stats", srv.handleStats)
			r.Get("/api/connections", srv.handleListConnections)
			r.Get("/api/dialogs/{dialogID}", srv.handleGetDialog)
			r.Delete("/api/dialogs/{dialogID}/cache", srv.handleInvalidateDialog)
			r.Get("/api/dialogs/{dialogID}/messages", srv.handleGetMessages)
			r.Get("/api/users/{userID}/unread", srv.handleGetUnread)
		})
	})

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartBackgroundTasks starts periodic cleanup tasks for rate limiters.
func (s *Server) StartBackgroundTasks(ctx context.Context) {
	s.upgradeRL.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
	s.rl.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
}

// --- Health ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  "store: " + err.Error(),
		})
		return
	}
	if err := s.sessions.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  "session store: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Admin handlers ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.Stats{
		Connections:   s.router.Connections().Len(),
		CachedDialogs: s.router.Dialogs().Len(),
		Uptime:        time.Since(s.startTime).Truncate(time.Second).String(),
		StartedAt:     s.startTime,
		AllowedTags:   s.router.Sanitizer().AllowedTags(),
		Storage:       s.storageDriver,
		Recent:        s.router.Recent(),
	})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns := lo.Map(s.router.Connections().Snapshot(), func(e directory.Entry, _ int) protocol.Connection {
		return protocol.Connection{UserID: int64(e.UserID), ConnID: e.ConnID}
	})
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) handleGetDialog(w http.ResponseWriter, r *http.Request) {
	id, ok := dialogIDParam(w, r)
	if !ok {
		return
	}

	_, cached := s.router.Dialogs().Cached(id)
	info, err := s.router.Dialogs().Info(r.Context(), id)
	if err != nil {
		if errors.Is(err, directory.ErrDialogNotFound) {
			writeError(w, http.StatusNotFound, "dialog not found")
			return
		}
		s.logger.Warn("dialog lookup failed", "dialog_id", int64(id), "error", err)
		writeError(w, http.StatusInternalServerError, "dialog lookup failed")
		return
	}

	online, _ := s.router.Connections().ConnsFor(info.Members)
	members := lo.Map(info.Members, func(u session.UserID, _ int) int64 { return int64(u) })
	onlineIDs := lo.Filter(members, func(u int64, _ int) bool {
		_, ok := online[session.UserID(u)]
		return ok
	})
	writeJSON(w, http.StatusOK, protocol.Dialog{
		ID:      int64(info.ID),
		Members: members,
		Online:  onlineIDs,
		Cached:  cached,
	})
}

func (s *Server) handleInvalidateDialog(w http.ResponseWriter, r *http.Request) {
	id, ok := dialogIDParam(w, r)
	if !ok {
		return
	}
	if !s.router.Dialogs().Invalidate(id) {
		writeError(w, http.StatusNotFound, "dialog is not cached")
		return
	}
	s.logger.Info("dialog cache invalidated", "dialog_id", int64(id), "by", getIdentityFromContext(r.Context()).Subject)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := dialogIDParam(w, r)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxMessageLimit)
	}

	messages, err := s.store.GetMessages(r.Context(), int64(id), limit)
	if err != nil {
		s.logger.Error("get messages failed", "dialog_id", int64(id), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleGetUnread(w http.ResponseWriter, r *http.Request) {
	userID, err := session.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	count, err := s.store.CountUnread(r.Context(), int64(userID))
	if err != nil {
		s.logger.Error("count unread failed", "user_id", int64(userID), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count unread messages")
		return
	}
	writeJSON(w, http.StatusOK, protocol.Unread{UserID: int64(userID), Count: count})
}

// --- Helpers ---

func dialogIDParam(w http.ResponseWriter, r *http.Request) (directory.DialogID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "dialogID"), 10, 64)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid dialog id")
		return 0, false
	}
	return directory.DialogID(n), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

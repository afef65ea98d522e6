package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tasuku-ai/tasuku/internal/auth"
	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/service/chat"
	"github.com/tasuku-ai/tasuku/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	chatSvc             *chat.Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	turnHooks           []TurnHook
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	ChatSvc             *chat.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	TurnHooks           []TurnHook
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		chatSvc:             d.ChatSvc,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		turnHooks:           d.TurnHooks,
	}
}

// writeInternalError logs the underlying error and responds with a
// generic message so storage internals never leak to clients.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"error", err,
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
	)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// writeStorageError maps common storage failures onto the error envelope.
func (h *Handlers) writeStorageError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, notFoundMsg)
	case errors.Is(err, storage.ErrConversationForbidden):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "you do not have access to this conversation")
	default:
		h.writeInternalError(w, r, "storage operation failed", err)
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, map[string]any{
		"status":   status,
		"version":  h.version,
		"postgres": pgStatus,
		"uptime":   int64(time.Since(h.startedAt).Seconds()),
	})
}

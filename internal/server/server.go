package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tasuku-ai/tasuku/internal/auth"
	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/ratelimit"
	"github.com/tasuku-ai/tasuku/internal/service/chat"
	"github.com/tasuku-ai/tasuku/internal/storage"
)

// Server is the Tasuku HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// TurnHook receives every completed chat turn after it has been persisted.
// Hooks run synchronously on the request path; a hook that panics is
// recovered and logged without affecting the response.
type TurnHook func(ctx context.Context, userID uuid.UUID, turn model.ChatResponse)

// Config holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): ChatLimiter, AuthLimiter, MCPServer,
// OpenAPISpec, TurnHooks, ExtraRoutes, Middlewares.
type Config struct {
	DB      *storage.DB
	JWTMgr  *auth.JWTManager
	ChatSvc *chat.Service
	Logger  *slog.Logger

	ChatLimiter ratelimit.Limiter
	AuthLimiter ratelimit.Limiter
	MCPServer   *mcpserver.MCPServer

	// OpenAPISpec, when non-nil, is served verbatim at GET /openapi.yaml.
	OpenAPISpec []byte

	// TurnHooks are called after each successful chat turn.
	TurnHooks []TurnHook

	// ExtraRoutes register additional handlers on the shared mux. They sit
	// behind the standard middleware chain, so requests carry auth claims.
	ExtraRoutes []func(*http.ServeMux)

	// Middlewares wrap the entire handler chain, outermost first.
	Middlewares []func(http.Handler) http.Handler

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		ChatSvc:             cfg.ChatSvc,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		TurnHooks:           cfg.TurnHooks,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Auth endpoints are limited per client IP; chat per authenticated user.
	authRL := ratelimit.Middleware(cfg.AuthLimiter, ratelimit.IPKeyFunc, reqIDFunc)
	chatRL := ratelimit.Middleware(cfg.ChatLimiter, ratelimit.UserKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Account endpoints (no auth required, rate limited by IP).
	mux.Handle("POST /auth/signup", authRL(http.HandlerFunc(h.HandleSignup)))
	mux.Handle("POST /auth/login", authRL(http.HandlerFunc(h.HandleLogin)))

	// Task CRUD.
	mux.HandleFunc("POST /v1/tasks", h.HandleCreateTask)
	mux.HandleFunc("GET /v1/tasks", h.HandleListTasks)
	mux.HandleFunc("GET /v1/tasks/{task_id}", h.HandleGetTask)
	mux.HandleFunc("PATCH /v1/tasks/{task_id}", h.HandleUpdateTask)
	mux.HandleFunc("DELETE /v1/tasks/{task_id}", h.HandleDeleteTask)
	mux.HandleFunc("POST /v1/tasks/{task_id}/toggle", h.HandleToggleTask)

	// Conversations.
	mux.HandleFunc("GET /v1/conversations", h.HandleListConversations)
	mux.HandleFunc("GET /v1/conversations/{conversation_id}/messages", h.HandleConversationMessages)
	mux.HandleFunc("DELETE /v1/conversations/{conversation_id}", h.HandleDeleteConversation)

	// Chat turn (rate limited per user).
	mux.Handle("POST /v1/chat", chatRL(http.HandlerFunc(h.HandleChat)))

	// MCP StreamableHTTP transport (auth required via middleware chain).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// OpenAPI contract (no auth).
	if cfg.OpenAPISpec != nil {
		mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(cfg.OpenAPISpec)
		})
	}

	// Embedder-supplied routes.
	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	// Embedder middlewares wrap everything; the first registered is outermost.
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

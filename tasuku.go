// Package tasuku is the public API for embedding the Tasuku task
// assistant server.
//
// Enterprise and plugin consumers import this package to construct and
// extend the server without forking it:
//
//	app, err := tasuku.New(
//	    tasuku.WithVersion(version),
//	    tasuku.WithLogger(logger),
//	    tasuku.WithTool(myCalendarTool),
//	    tasuku.WithTurnHook(myAuditHook),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: tasuku (root) imports
// internal/*, but internal/* never imports tasuku (root). Public types
// (Task, Turn, etc.) are standalone structs with no internal imports;
// conversion helpers live here because this is the only file that sees
// both sides of the boundary.
package tasuku

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tasuku-ai/tasuku/api"
	"github.com/tasuku-ai/tasuku/internal/agent"
	"github.com/tasuku-ai/tasuku/internal/auth"
	"github.com/tasuku-ai/tasuku/internal/config"
	"github.com/tasuku-ai/tasuku/internal/mcp"
	"github.com/tasuku-ai/tasuku/internal/model"
	"github.com/tasuku-ai/tasuku/internal/ratelimit"
	"github.com/tasuku-ai/tasuku/internal/server"
	"github.com/tasuku-ai/tasuku/internal/service/chat"
	"github.com/tasuku-ai/tasuku/internal/storage"
	"github.com/tasuku-ai/tasuku/internal/telemetry"
	"github.com/tasuku-ai/tasuku/internal/tools"
	"github.com/tasuku-ai/tasuku/migrations"
)

// App is the Tasuku server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	chatLimiter  ratelimit.Limiter // nil when rate limiting is disabled
	authLimiter  ratelimit.Limiter // nil when rate limiting is disabled
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Tasuku server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tasuku starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	// Run embedded migrations, then any extras in registration order.
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Tool registry: built-in task tools plus extension tools.
	registry := tools.NewRegistry(db, logger)
	for _, t := range o.tools {
		registry.Register(toInternalTool(t))
		logger.Info("extension tool registered", "tool", t.Name)
	}

	// Reasoning client and turn orchestrator.
	client, err := agent.NewClient(cfg.AnthropicAPIKey, cfg.Model)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("agent: %w", err)
	}
	orchestrator := agent.New(agent.Config{
		Client:        client,
		Registry:      registry,
		MaxIterations: cfg.AgentMaxIterations,
		Timeout:       cfg.AgentTimeout,
		Logger:        logger,
	})

	chatSvc := chat.New(db, orchestrator, logger)

	mcpSrv := mcp.New(registry, version, logger)

	// Rate limiters: chat per user, auth per IP.
	var chatLimiter, authLimiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		chatLimiter = ratelimit.NewMemoryLimiter(cfg.ChatRateRPS, cfg.ChatRateBurst)
		authLimiter = ratelimit.NewMemoryLimiter(cfg.AuthRateRPS, cfg.AuthRateBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"chat_rps", cfg.ChatRateRPS, "auth_rps", cfg.AuthRateRPS)
	} else {
		logger.Info("rate limiting: disabled")
	}

	// Adapt turn hooks from public tasuku.TurnHook to internal server format.
	var turnHooks []server.TurnHook
	for _, hook := range o.turnHooks {
		hook := hook // capture
		turnHooks = append(turnHooks, func(ctx context.Context, userID uuid.UUID, resp model.ChatResponse) {
			hook.TurnCompleted(ctx, toPublicTurn(userID, resp))
		})
	}

	// Adapt route registrars and middlewares to the internal server types.
	var extraRoutes []func(*http.ServeMux)
	for _, fn := range o.routeRegistrars {
		extraRoutes = append(extraRoutes, fn)
	}
	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	// Create HTTP server (MCP mounted at /mcp).
	srv := server.New(server.Config{
		DB:                  db,
		JWTMgr:              jwtMgr,
		ChatSvc:             chatSvc,
		Logger:              logger,
		ChatLimiter:         chatLimiter,
		AuthLimiter:         authLimiter,
		MCPServer:           mcpSrv.MCPServer(),
		OpenAPISpec:         api.OpenAPISpec,
		TurnHooks:           turnHooks,
		ExtraRoutes:         extraRoutes,
		Middlewares:         middlewares,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		chatLimiter:  chatLimiter,
		authLimiter:  authLimiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler. Useful for embedding the App in
// an existing server or driving it with httptest.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the rate limiters,
// the database pool and the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("tasuku shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	if a.chatLimiter != nil {
		_ = a.chatLimiter.Close()
	}
	if a.authLimiter != nil {
		_ = a.authLimiter.Close()
	}
	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("tasuku stopped")
	return nil
}

// ── Public/internal boundary adapters ─────────────────────────────────────────

// toolErrCode is the envelope code for extension tool failures that don't
// carry a *ToolError.
const toolErrCode = "TOOL_ERROR"

// toInternalTool adapts a public extension Tool to the registry format.
func toInternalTool(t Tool) tools.Tool {
	handler := t.Handler
	return tools.Tool{
		Name:        t.Name,
		Description: t.Description,
		Schema:      t.Schema,
		Required:    t.Required,
		Handler: func(ctx context.Context, userID uuid.UUID, input json.RawMessage) tools.Envelope {
			payload, err := handler(ctx, userID, input)
			if err != nil {
				var te *ToolError
				if errors.As(err, &te) {
					return tools.Fail(te.Code, te.Message)
				}
				return tools.Fail(toolErrCode, err.Error())
			}
			return tools.OK(payload)
		},
	}
}

// toPublicTurn converts a completed turn to the public Turn view.
func toPublicTurn(userID uuid.UUID, resp model.ChatResponse) Turn {
	calls := make([]ToolCall, 0, len(resp.ToolCalls))
	for _, c := range resp.ToolCalls {
		calls = append(calls, ToolCall{
			ToolName:   c.ToolName,
			Parameters: c.Parameters,
			Result:     c.Result,
			Success:    c.Success,
		})
	}
	return Turn{
		ConversationID:   resp.ConversationID,
		UserID:           userID,
		AssistantMessage: resp.AssistantMessage,
		ToolCalls:        calls,
		CreatedAt:        resp.CreatedAt,
	}
}

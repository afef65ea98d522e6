package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tasuku-ai/tasuku/api"
	"github.com/tasuku-ai/tasuku/internal/agent"
	"github.com/tasuku-ai/tasuku/internal/auth"
	"github.com/tasuku-ai/tasuku/internal/config"
	"github.com/tasuku-ai/tasuku/internal/mcp"
	"github.com/tasuku-ai/tasuku/internal/ratelimit"
	"github.com/tasuku-ai/tasuku/internal/server"
	"github.com/tasuku-ai/tasuku/internal/service/chat"
	"github.com/tasuku-ai/tasuku/internal/storage"
	"github.com/tasuku-ai/tasuku/internal/telemetry"
	"github.com/tasuku-ai/tasuku/internal/tools"
	"github.com/tasuku-ai/tasuku/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("TASUKU_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("tasuku starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and apply embedded migrations.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// JWT manager (generates an ephemeral keypair when no paths are set).
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Tool registry, shared by the agent loop and the MCP surface.
	registry := tools.NewRegistry(db, logger)

	// Reasoning client and turn orchestrator.
	client, err := agent.NewClient(cfg.AnthropicAPIKey, cfg.Model)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
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
		chatL := ratelimit.NewMemoryLimiter(cfg.ChatRateRPS, cfg.ChatRateBurst)
		authL := ratelimit.NewMemoryLimiter(cfg.AuthRateRPS, cfg.AuthRateBurst)
		defer func() { _ = chatL.Close() }()
		defer func() { _ = authL.Close() }()
		chatLimiter, authLimiter = chatL, authL
		logger.Info("rate limiting: memory (in-process token bucket)",
			"chat_rps", cfg.ChatRateRPS, "auth_rps", cfg.AuthRateRPS)
	} else {
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.Config{
		DB:                  db,
		JWTMgr:              jwtMgr,
		ChatSvc:             chatSvc,
		Logger:              logger,
		ChatLimiter:         chatLimiter,
		AuthLimiter:         authLimiter,
		MCPServer:           mcpSrv.MCPServer(),
		OpenAPISpec:         api.OpenAPISpec,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("tasuku shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("tasuku stopped")
	return nil
}

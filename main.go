package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"

	// Dialect registration: each subpackage registers itself in init().
	_ "github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource/mongo"
	_ "github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource/mysql"
	_ "github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource/postgres"

	"github.com/datapilot-ai/datapilot-engine/pkg/auth"
	"github.com/datapilot-ai/datapilot-engine/pkg/config"
	"github.com/datapilot-ai/datapilot-engine/pkg/database"
	"github.com/datapilot-ai/datapilot-engine/pkg/handlers"
	"github.com/datapilot-ai/datapilot-engine/pkg/llm"
	"github.com/datapilot-ai/datapilot-engine/pkg/logging"
	enginemcp "github.com/datapilot-ai/datapilot-engine/pkg/mcp"
	"github.com/datapilot-ai/datapilot-engine/pkg/mcp/tools"
	"github.com/datapilot-ai/datapilot-engine/pkg/middleware"
	"github.com/datapilot-ai/datapilot-engine/pkg/repositories"
	"github.com/datapilot-ai/datapilot-engine/pkg/safety"
	"github.com/datapilot-ai/datapilot-engine/pkg/services"
	"github.com/datapilot-ai/datapilot-engine/pkg/ws"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Env, cfg.Log.Dir)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting datapilot-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("redis_cache", cfg.Redis.Enabled()),
		zap.Bool("mcp", cfg.MCP.Enabled))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	state, err := database.NewState(ctx, &cfg.State)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect to state store", zap.Error(err))
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = repositories.EnsureIndexes(ctx, state, time.Duration(cfg.Session.TTLDays)*24*time.Hour)
	cancel()
	if err != nil {
		logger.Fatal("Failed to ensure state indexes", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	oracle, err := llm.New(&llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to construct LLM oracle", zap.Error(err))
	}
	if oracle == nil {
		logger.Info("no LLM provider configured, running heuristics only")
	}

	connections := datasource.NewManager(datasource.ManagerConfig{
		PoolMaxConns:     cfg.Datasource.PoolMaxConns,
		PoolMinConns:     cfg.Datasource.PoolMinConns,
		ConnectionTTL:    cfg.Datasource.ConnectionTTL(),
		PreflightTimeout: cfg.Datasource.PreflightTimeout(),
		StatementTimeout: cfg.Datasource.StatementTimeout(),
	}, logger)

	sessionRepo := repositories.NewSessionRepository(state)
	messageRepo := repositories.NewMessageRepository(state)
	memoryRepo := repositories.NewMemoryRepository(state)
	profileRepo := repositories.NewProfileRepository(state)
	schemaRepo := repositories.NewSchemaRepository(state)

	gate := safety.NewGate(cfg.Agent.DefaultRowCap, logger)
	registry := services.NewSchemaRegistry(schemaRepo, redisClient, cfg.Agent.SchemaTTL(), logger)
	profiler := services.NewCapabilityProfiler()
	matcher := services.NewKeywordMatcher()
	memory := services.NewMemoryService(memoryRepo, profileRepo, logger)
	planner := services.NewPlanner(oracle, logger)
	synthesizer := services.NewQuerySynthesizer(oracle, logger)
	executor := services.NewExecutor(synthesizer, gate, oracle, cfg.Agent.QueryTimeout(), cfg.Agent.DefaultRowCap, logger)
	shaper := services.NewResponseShaper(oracle, cfg.Agent.RedactSQL, logger)

	agent := services.NewAgentService(connections, registry, profiler, matcher, memory, planner, executor, shaper, cfg.Version, logger)

	sessions := services.NewSessionManager(sessionRepo, messageRepo, agent, services.SessionManagerConfig{
		IdleTimeout:   cfg.Session.IdleTimeout(),
		SweepInterval: cfg.Session.SweepInterval(),
		MaxPerUser:    cfg.Session.MaxPerUser,
		MessageCap:    cfg.Session.MessageCap,
	}, logger)
	sessions.StartSweep()

	verifier, err := auth.NewVerifier(&auth.VerifierConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWTSecret:          cfg.Auth.JWTSecret,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to construct token verifier", zap.Error(err))
	}
	devMode := !cfg.Auth.EnableVerification
	authMW := auth.NewMiddleware(verifier, devMode, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAgentHandler(agent, authMW, logger).RegisterRoutes(mux)
	ws.NewHandler(sessions, verifier, devMode, logger).RegisterRoutes(mux)

	if cfg.MCP.Enabled {
		mcpServer := enginemcp.NewServer("datapilot-engine", cfg.Version, logger)
		tools.RegisterAskDatabaseTool(mcpServer.MCP(), agent, logger)
		tools.RegisterCapabilitiesTool(mcpServer.MCP(), agent)
		mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())
		logger.Info("MCP surface enabled", zap.String("path", "/mcp"))
	}

	server := &http.Server{
		Addr:         cfg.BindAddr + ":" + cfg.Port,
		Handler:      middleware.RequestLogger(logger)(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long turns: LLM calls plus DB execution
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}

	sessions.StopSweep()
	connections.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := state.Close(ctx); err != nil {
		logger.Error("Failed to disconnect state store", zap.Error(err))
	}

	logger.Info("stopped")
}

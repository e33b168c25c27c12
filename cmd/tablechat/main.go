package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/liliang-cn/tablechat/internal/api"
	"github.com/liliang-cn/tablechat/internal/catalog"
	"github.com/liliang-cn/tablechat/internal/config"
	"github.com/liliang-cn/tablechat/internal/repository"
	"github.com/liliang-cn/tablechat/internal/service"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// A local .env may carry TABLECHAT_* overrides
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize history storage
	history, err := repository.NewHistoryRepository(context.Background(), cfg)
	if err != nil {
		logger.Fatal("Failed to initialize history storage",
			zap.String("backend", cfg.History.Backend), zap.Error(err))
	}
	defer history.Close()

	// The upstream client resets a session whenever it answers 401. The
	// manager does not exist yet, so the hook looks it up lazily.
	var sessions *service.WorkspaceManager
	client := catalog.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, logger,
		catalog.WithUnauthorizedHook(func(sessionID string) {
			if sessions != nil {
				sessions.Reset(sessionID)
			}
		}),
	)

	// Initialize services
	sessions = service.NewWorkspaceManager(
		client,
		history,
		service.WorkspaceOptions{
			FileType:         cfg.Chat.FileType,
			PreviewRows:      cfg.Chat.PreviewRows,
			QueryTimeout:     cfg.Chat.QueryTimeout,
			CancelOnDeselect: cfg.Chat.CancelOnDeselect,
		},
		service.SessionOptions{
			IdleTTL:         cfg.Session.IdleTTL,
			CleanupInterval: cfg.Session.CleanupInterval,
			// Persistent backends keep history of idle sessions.
			PurgeOnExpiry: cfg.History.Backend == repository.BackendMemory,
		},
		logger,
	)
	catalogService := service.NewCatalogService(client, sessions, logger)

	// Setup router
	router := api.SetupRouter(sessions, catalogService, logger, api.RouterConfig{
		AllowOrigins: cfg.CORS.AllowOrigins,
	})

	// Create HTTP server. Chat answers can take as long as the query timeout.
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Chat.QueryTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting tablechat server",
			zap.String("address", cfg.Address()),
			zap.String("upstream", cfg.Upstream.BaseURL),
			zap.String("history_backend", cfg.History.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

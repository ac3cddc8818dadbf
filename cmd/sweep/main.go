package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/auth"
	"github.com/elskow/crm-auth/internal/config"
	"github.com/elskow/crm-auth/internal/database"
	"github.com/elskow/crm-auth/internal/maintenance"
	"github.com/elskow/crm-auth/internal/server"
)

// sweep removes expired sessions once and exits. It is meant to be run from
// cron or a scheduled job next to the API.
func main() {
	if os.Getenv("APP_ENV") == "" {
		os.Setenv("APP_ENV", "development")
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := server.NewLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	os.Exit(run(cfg, logger))
}

// run owns every deferred cleanup so they complete before main exits.
func run(cfg *config.AppConfig, logger *zap.Logger) int {
	defer logger.Sync()

	manager, err := database.NewManager(&cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return 1
	}
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := auth.NewSessionRegistry(auth.NewRepository(manager.DB()), logger)
	cleanup := maintenance.NewCleanupManager(registry, nil, maintenance.NewMetricsCollector(), logger)

	result, err := cleanup.Run(ctx)
	if err != nil {
		logger.Error("Sweep failed", zap.String("run_id", result.ID), zap.Error(err))
		return 1
	}
	logger.Info("Sweep finished",
		zap.String("run_id", result.ID),
		zap.Int64("sessions_removed", result.SessionsRemoved),
		zap.Duration("duration", result.Duration))
	return 0
}

package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/migration"
	"github.com/elskow/crm-auth/internal/server"
)

func main() {
	command := flag.String("command", "up", "migration command (up/down/down-to/status/version/reset)")
	target := flag.Int64("version", 0, "target version for down-to")
	flag.Parse()

	if os.Getenv("APP_ENV") == "" {
		os.Setenv("APP_ENV", "development")
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := server.NewLogger(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	migrator, err := migration.NewMigrator(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer migrator.Close()

	if err := run(migrator, *command, *target, logger); err != nil {
		logger.Error("Migration command failed", zap.String("command", *command), zap.Error(err))
		os.Exit(1)
	}
}

func run(migrator *migration.Migrator, command string, target int64, logger *zap.Logger) error {
	switch command {
	case "up":
		if err := migrator.Up(); err != nil {
			return err
		}
	case "down":
		if err := migrator.Down(); err != nil {
			return err
		}
	case "down-to":
		if err := migrator.DownTo(target); err != nil {
			return err
		}
	case "status":
		return migrator.Status()
	case "reset":
		if err := migrator.Reset(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	version, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("Migration finished", zap.String("command", command), zap.Int64("version", version))
	return nil
}

package app

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/auth"
	"github.com/elskow/crm-auth/internal/database"
	"github.com/elskow/crm-auth/internal/maintenance"
	"github.com/elskow/crm-auth/internal/migration"
	"github.com/elskow/crm-auth/internal/ratelimit"
	"github.com/elskow/crm-auth/internal/server"
)

// Module combines all application modules
func Module() fx.Option {
	return fx.Options(
		// Logger
		fx.Provide(newLogger),

		// Configuration
		fx.Provide(server.LoadConfig),

		// Storage
		database.Module(),
		migration.Module(),

		// Domain
		auth.NewModule(),
		ratelimit.Module(),
		maintenance.Module(),

		// Server
		fx.Provide(server.NewServer),

		// Start the servers
		fx.Invoke(registerHooks),
	)
}

func newLogger() (*zap.Logger, error) {
	return server.NewLogger(os.Getenv("APP_ENV"))
}

func registerHooks(
	lifecycle fx.Lifecycle,
	srv *server.Server,
	log *zap.Logger,
	shutdowner fx.Shutdowner,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			serve := func(name string, start func() error) {
				if err := start(); err != nil {
					log.Error("server stopped", zap.String("server", name), zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}
			go serve("http", srv.StartHTTP)
			go serve("grpc", srv.StartGRPC)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}

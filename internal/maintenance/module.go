package maintenance

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/auth"
	"github.com/elskow/crm-auth/internal/ratelimit"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewMetricsCollector,
			fx.Annotate(
				func(sessions *auth.SessionRegistry, limiter *ratelimit.Limiter, metrics *MetricsCollector, logger *zap.Logger) *CleanupManager {
					return NewCleanupManager(sessions, limiter, metrics, logger)
				},
			),
			NewHandler,
		),
	)
}

package ratelimit

import (
	"go.uber.org/fx"

	"github.com/elskow/crm-auth/internal/config"
)

// Module provides the process-wide limiter.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig) *Limiter {
					p := config.RateLimit.SweepProbability
					if p <= 0 {
						p = DefaultSweepProbability
					}
					return New(WithSweepProbability(p))
				},
			),
		),
	)
}

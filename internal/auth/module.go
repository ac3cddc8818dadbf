package auth

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/elskow/crm-auth/internal/config"
)

// NewModule returns the auth module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			// Provide repository
			fx.Annotate(
				func(db *gorm.DB) Repository {
					return NewRepository(db)
				},
			),
			// Provide token service; a bad signing config fails startup
			fx.Annotate(
				func(config *config.AppConfig) (*TokenService, error) {
					return NewTokenService(&config.Auth)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig) *PasswordHasher {
					return NewPasswordHasher(config.Auth.BcryptCost)
				},
			),
			NewSessionRegistry,
			fx.Annotate(
				func(config *config.AppConfig, repo Repository, hasher *PasswordHasher, log *zap.Logger) *TwoFactorGate {
					return NewTwoFactorGate(&config.TwoFactor, repo, hasher, log)
				},
			),
			NewLogMailer,
			// Provide service
			fx.Annotate(
				func(
					config *config.AppConfig,
					log *zap.Logger,
					repo Repository,
					tokens *TokenService,
					sessions *SessionRegistry,
					twoFactor *TwoFactorGate,
					hasher *PasswordHasher,
					mailer Mailer,
				) *Service {
					return NewService(ServiceParams{
						Config:     &config.Auth,
						Log:        log,
						Repository: repo,
						Tokens:     tokens,
						Sessions:   sessions,
						TwoFactor:  twoFactor,
						Hasher:     hasher,
						Mailer:     mailer,
					})
				},
			),
			// Provide middleware
			NewAuthMiddleware,
			// Provide handler
			fx.Annotate(
				func(svc *Service, twoFactor *TwoFactorGate, mw *AuthMiddleware, config *config.AppConfig, log *zap.Logger) *Handler {
					return NewHandler(svc, twoFactor, mw, &config.Auth, log)
				},
			),
		),
	)
}

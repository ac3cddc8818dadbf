package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Port                  string `mapstructure:"port"`
	EnableReflection      bool   `mapstructure:"enable_reflection"`
	MaxReceiveMessageSize int    `mapstructure:"max_receive_message_size"`
	MaxSendMessageSize    int    `mapstructure:"max_send_message_size"`
}

type AuthConfig struct {
	JWTSecret                 string        `mapstructure:"jwt_secret"`
	AccessTokenDuration       time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration      time.Duration `mapstructure:"refresh_token_duration"`
	PasswordResetDuration     time.Duration `mapstructure:"password_reset_duration"`
	EmailVerificationDuration time.Duration `mapstructure:"email_verification_duration"`
	BcryptCost                int           `mapstructure:"bcrypt_cost"`
	SecureCookies             bool          `mapstructure:"secure_cookies"`
	AppURL                    string        `mapstructure:"app_url"`
	// OAuthCallbackEnabled exposes the callback that accepts an already
	// resolved provider profile. Only for environments with a trusted proxy.
	OAuthCallbackEnabled bool `mapstructure:"oauth_callback_enabled"`
}

type TwoFactorConfig struct {
	Issuer string `mapstructure:"issuer"`
	// Skew is the number of 30 second steps accepted on either side of now.
	// Unset means 2; an explicit 0 accepts the current step only.
	Skew   *uint `mapstructure:"skew"`
	QRSize int   `mapstructure:"qr_size"`
}

type RateLimitPolicy struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

type RateLimitConfig struct {
	SweepProbability float64         `mapstructure:"sweep_probability"`
	Login            RateLimitPolicy `mapstructure:"login"`
	PasswordReset    RateLimitPolicy `mapstructure:"password_reset"`
}

// Validate rejects policies that would refuse every request, which is what a
// missing table decodes to.
func (c RateLimitConfig) Validate() error {
	policies := map[string]RateLimitPolicy{
		"login":          c.Login,
		"password_reset": c.PasswordReset,
	}
	for name, p := range policies {
		if p.Window <= 0 || p.MaxRequests <= 0 {
			return fmt.Errorf("rate_limit.%s: window and max_requests must be positive", name)
		}
	}
	return nil
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN renders the libpq keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host,
		c.User,
		c.Password,
		c.Name,
		c.Port,
		c.SSLMode,
	)
}

type AppConfig struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	GRPC        GRPCConfig      `mapstructure:"grpc"`
	Auth        AuthConfig      `mapstructure:"auth"`
	TwoFactor   TwoFactorConfig `mapstructure:"two_factor"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Database    DatabaseConfig  `mapstructure:"database"`
}

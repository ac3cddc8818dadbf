package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/elskow/crm-auth/internal/config"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// envOverridable lists the sections that may carry a per-environment table,
// e.g. [grpc.production].
var envOverridable = []string{"grpc", "database", "rate_limit"}

func LoadConfig() (*config.AppConfig, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/server"
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configPath)

	// CRM_AUTH_JWT_SECRET overrides auth.jwt_secret
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config config.AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.Environment = env

	// Load environment-specific configurations
	if err := applyEnvOverrides(v, env, &config); err != nil {
		return nil, err
	}

	if env == EnvProduction {
		config.Auth.SecureCookies = true
		config.Auth.OAuthCallbackEnabled = false
	}

	if err := config.RateLimit.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(v *viper.Viper, env string, cfg *config.AppConfig) error {
	targets := map[string]any{
		"grpc":       &cfg.GRPC,
		"database":   &cfg.Database,
		"rate_limit": &cfg.RateLimit,
	}

	for _, section := range envOverridable {
		key := fmt.Sprintf("%s.%s", section, env)
		if envSettings := v.GetStringMap(key); len(envSettings) == 0 {
			continue
		}
		if err := v.UnmarshalKey(key, targets[section]); err != nil {
			return fmt.Errorf("error unmarshaling %s config: %w", key, err)
		}
	}
	return nil
}

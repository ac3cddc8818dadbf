package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/config"
)

func TestRunUnreachableDatabase(t *testing.T) {
	cfg := &config.AppConfig{
		Database: config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "crm",
			Password: "secret",
			Name:     "crm_auth",
			SSLMode:  "disable",
		},
	}

	assert.Equal(t, 1, run(cfg, zap.NewNop()))
}

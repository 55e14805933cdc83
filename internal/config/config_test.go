package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("HELPR_JWT_SECRET", "a-very-long-test-secret")

	path := writeConfig(t, `
app:
  name: helpr
  environment: production
database:
  path: "data/helpr.db"
api:
  auth:
    jwt_secret: "${HELPR_JWT_SECRET}"
    access_ttl: 10m
realtime:
  ping_interval: 20s
  allowed_origins: ["https://app.example.com"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "a-very-long-test-secret", cfg.API.Auth.JWTSecret)
	assert.Equal(t, 10*time.Minute, cfg.API.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.API.Auth.RefreshTTL)
	assert.Equal(t, "123456", cfg.API.Auth.OTPCode)
	assert.Equal(t, 20*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Realtime.PongTimeout)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Realtime.AllowedOrigins)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.True(t, cfg.App.IsProduction())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{
			Database: DatabaseConfig{Path: "helpr.db"},
			API:      APIConfig{Auth: APIAuthConfig{JWTSecret: "0123456789abcdef"}},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.API.Auth.JWTSecret = "" }, wantErr: true},
		{name: "short secret", mutate: func(c *Config) { c.API.Auth.JWTSecret = "short" }, wantErr: true},
		{name: "missing db path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "pong before ping", mutate: func(c *Config) { c.Realtime.PongTimeout = time.Second }, wantErr: true},
		{name: "fanout without redis", mutate: func(c *Config) { c.Realtime.RedisFanout = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

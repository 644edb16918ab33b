package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TRUST_PROXY_HEADERS", "")

	cfg := Load()

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWT.ExpiryPeriod)
	assert.Equal(t, 15*time.Minute, cfg.Invitations.SweepInterval)
	assert.False(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, "postgres://postgres:@localhost:5432/tenantkit?sslmode=disable", cfg.Database.DSN())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "postgres://app:pw@db:5432/app")
	t.Setenv("JWT_EXPIRY", "30m")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("LOG_ADD_SOURCE", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RATE_LIMIT", "not-a-number")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg := Load()

	assert.Equal(t, "postgres://app:pw@db:5432/app", cfg.Database.DSN())
	assert.Equal(t, 30*time.Minute, cfg.JWT.ExpiryPeriod)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.False(t, cfg.LogAddSource)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, 20, cfg.Redis.RateLimit, "unparseable values fall back to the default")
}

func TestValidate(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	cfg := Load()
	cfg.JWT.Secret = "your-secret-key"
	require.Error(t, cfg.Validate())

	cfg.JWT.Secret = "short"
	require.Error(t, cfg.Validate())

	cfg.JWT.Secret = "a-very-long-production-secret"
	require.NoError(t, cfg.Validate())
}

func TestSlogLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		cfg := &Config{LogLevel: name}
		assert.Equal(t, want, cfg.SlogLevel(), name)
	}
}

package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	require.Equal(t, ":8815", cfg.ListenAddr)
	require.Equal(t, ":8080", cfg.OpsListenAddr)
	require.Equal(t, "flightgate_registry.sqlite", cfg.RegistryDBPath)
	require.Equal(t, 120*time.Minute, cfg.TicketTTL)
	require.Equal(t, "@every 10m", cfg.SweepSchedule)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 100.0, cfg.RateLimitRPS)
	require.Equal(t, 200, cfg.RateLimitBurst)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	require.NotEmpty(t, cfg.Warnings)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("REGISTRY_DB_PATH", "/tmp/reg.sqlite")
	t.Setenv("TICKET_TTL", "30m")
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	require.Equal(t, "/tmp/reg.sqlite", cfg.RegistryDBPath)
	require.Equal(t, 30*time.Minute, cfg.TicketTTL)
	require.Equal(t, 5.0, cfg.RateLimitRPS)
	require.Equal(t, 10, cfg.RateLimitBurst)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadFromEnvInvalidTicketTTL(t *testing.T) {
	t.Setenv("TICKET_TTL", "not-a-duration")
	_, err := LoadFromEnv()
	require.Error(t, err)

	t.Setenv("TICKET_TTL", "-5m")
	_, err = LoadFromEnv()
	require.Error(t, err)
}

func TestProductionRequiresExplicitConfig(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example")

	// Missing REGISTRY_DB_PATH is fatal in production.
	_, err := LoadFromEnv()
	require.Error(t, err)

	t.Setenv("REGISTRY_DB_PATH", "/var/lib/flightgate/registry.sqlite")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		require.Equal(t, tt.want, cfg.SlogLevel(), "level %q", tt.level)
	}
}

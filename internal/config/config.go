// Package config handles gateway configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the Flight gateway and its ops surface.
type Config struct {
	ListenAddr     string // Flight gRPC listen address (default ":8815")
	OpsListenAddr  string // HTTP ops listen address (default ":8080")
	PublicLocation string // location URI advertised in flight endpoints (default grpc://<listen addr>)

	RegistryDBPath string // path to the SQLite token registry file

	TicketTTL     time.Duration // validity window for minted tickets (default 120m)
	SweepSchedule string        // cron spec for the expired-ticket sweep (default "@every 10m")

	LogLevel string // log level: debug, info, warn, error (default "info")
	Env      string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained calls per second per client (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS for the ops endpoint
	CORSAllowedOrigins []string // allowed origins (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:     os.Getenv("LISTEN_ADDR"),
		OpsListenAddr:  os.Getenv("OPS_LISTEN_ADDR"),
		PublicLocation: os.Getenv("PUBLIC_LOCATION"),
		RegistryDBPath: os.Getenv("REGISTRY_DB_PATH"),
		SweepSchedule:  os.Getenv("TICKET_SWEEP_SCHEDULE"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		Env:            os.Getenv("ENV"),
	}

	if v := os.Getenv("TICKET_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TICKET_TTL %q: %w", v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("TICKET_TTL must be positive, got %q", v)
		}
		cfg.TicketTTL = d
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_RPS %q", v))
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_BURST %q", v))
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8815"
	}
	if cfg.OpsListenAddr == "" {
		cfg.OpsListenAddr = ":8080"
	}
	if cfg.RegistryDBPath == "" {
		cfg.RegistryDBPath = "flightgate_registry.sqlite"
		cfg.Warnings = append(cfg.Warnings, "REGISTRY_DB_PATH not set, using flightgate_registry.sqlite in the working directory")
	}
	if cfg.TicketTTL == 0 {
		cfg.TicketTTL = 120 * time.Minute
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 10m"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if os.Getenv("REGISTRY_DB_PATH") == "" {
			return nil, fmt.Errorf("REGISTRY_DB_PATH must be set in production (ENV=production)")
		}
	}

	return cfg, nil
}

package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MemoryDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Memory")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, 10, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 30, cfg.RateLimit.PromoLimit)
	assert.Equal(t, 5, cfg.RateLimit.BookerLimit)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.BookerWindow)
	assert.Equal(t, time.Hour, cfg.Postgres.ConnLifetime)
	assert.Equal(t, 10*time.Second, cfg.Postgres.StatementTimeout)
	assert.Equal(t, 2*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.Booking.MaxReferenceAttempts)
	assert.False(t, cfg.Booking.StrictPricing)
	assert.True(t, cfg.Storage.MigrateOnStart)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestNew_PostgresRequiresCredentials(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("POSTGRES_DB", "")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_USER")
}

func TestNew_ParsesOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_USER", "bookit")
	t.Setenv("POSTGRES_PASSWORD", "p@ss word")
	t.Setenv("POSTGRES_DB", "bookit")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_BOOKER", "2")
	t.Setenv("POSTGRES_MIN_CONNS", "2")
	t.Setenv("POSTGRES_STATEMENT_TIMEOUT", "3s")
	t.Setenv("BOOKING_STRICT_PRICING", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "postgres://bookit:p%40ss%20word@db:5432/bookit?sslmode=disable", cfg.DSN())
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, time.Minute, cfg.RateLimit.PromoWindow)
	assert.Equal(t, 2, cfg.RateLimit.BookerLimit)
	assert.EqualValues(t, 2, cfg.Postgres.MinConns)
	assert.Equal(t, 3*time.Second, cfg.Postgres.StatementTimeout)
	assert.True(t, cfg.Booking.StrictPricing)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:    ServerConfig{Port: 8080},
			Storage:   StorageConfig{Driver: DriverMemory},
			Postgres:  PostgresConfig{MaxConns: 10},
			RateLimit: RateLimitConfig{
				Limit: 10, Window: time.Minute,
				PromoLimit: 30, PromoWindow: time.Minute,
				BookerLimit: 5, BookerWindow: 10 * time.Minute,
			},
			Booking:   BookingConfig{MaxReferenceAttempts: 5},
			LogLevel:  "info",
		}
	}

	tests := map[string]func(c *Config){
		"unknown driver": func(c *Config) { c.Storage.Driver = "sqlite" },
		"bad port":       func(c *Config) { c.Server.Port = 0 },
		"zero limit":     func(c *Config) { c.RateLimit.Limit = 0 },
		"zero window":    func(c *Config) { c.RateLimit.Window = 0 },
		"zero promo":     func(c *Config) { c.RateLimit.PromoLimit = 0 },
		"zero booker":    func(c *Config) { c.RateLimit.BookerWindow = 0 },
		"min conns":      func(c *Config) { c.Postgres.MinConns = 11 },
		"zero attempts":  func(c *Config) { c.Booking.MaxReferenceAttempts = 0 },
		"bad log level":  func(c *Config) { c.LogLevel = "loud" },
	}

	ok := base()
	require.NoError(t, ok.Validate())

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

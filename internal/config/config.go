package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Booking   BookingConfig

	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"2h"`
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"60s"`
	SeedOnStart    bool          `env:"SEED_ON_START" envDefault:"false"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

type StorageConfig struct {
	Driver         string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`
}

type PostgresConfig struct {
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	Name     string `env:"POSTGRES_DB"`
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns int32  `env:"POSTGRES_MIN_CONNS" envDefault:"0"`

	ConnLifetime     time.Duration `env:"POSTGRES_CONN_LIFETIME" envDefault:"1h"`
	StatementTimeout time.Duration `env:"POSTGRES_STATEMENT_TIMEOUT" envDefault:"10s"`
}

// RedisConfig describes the optional redis connection. An empty Addr
// disables caching, rate limiting and idempotency keys.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// RateLimitConfig holds one limit per guarded scope. Bookings and promo
// checks are counted per client IP; Booker counts booking attempts per
// normalized email across IPs.
type RateLimitConfig struct {
	Limit  int           `env:"RATE_LIMIT" envDefault:"10"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	PromoLimit  int           `env:"RATE_LIMIT_PROMO" envDefault:"30"`
	PromoWindow time.Duration `env:"RATE_LIMIT_PROMO_WINDOW" envDefault:"1m"`

	BookerLimit  int           `env:"RATE_LIMIT_BOOKER" envDefault:"5"`
	BookerWindow time.Duration `env:"RATE_LIMIT_BOOKER_WINDOW" envDefault:"10m"`
}

type BookingConfig struct {
	MaxReferenceAttempts int  `env:"BOOKING_MAX_REF_ATTEMPTS" envDefault:"5"`
	StrictPricing        bool `env:"BOOKING_STRICT_PRICING" envDefault:"false"`
}

// New loads .env when present, then parses the environment.
func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		switch {
		case c.Postgres.User == "":
			return fmt.Errorf("missing POSTGRES_USER")
		case c.Postgres.Password == "":
			return fmt.Errorf("missing POSTGRES_PASSWORD")
		case c.Postgres.Name == "":
			return fmt.Errorf("missing POSTGRES_DB")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}

	for _, rl := range []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{"RATE_LIMIT", c.RateLimit.Limit, c.RateLimit.Window},
		{"RATE_LIMIT_PROMO", c.RateLimit.PromoLimit, c.RateLimit.PromoWindow},
		{"RATE_LIMIT_BOOKER", c.RateLimit.BookerLimit, c.RateLimit.BookerWindow},
	} {
		if rl.limit <= 0 {
			return fmt.Errorf("%s must be positive", rl.name)
		}
		if rl.window <= 0 {
			return fmt.Errorf("%s_WINDOW must be positive", rl.name)
		}
	}

	if c.Postgres.MinConns < 0 || c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("POSTGRES_MIN_CONNS must be between 0 and POSTGRES_MAX_CONNS")
	}

	if c.Booking.MaxReferenceAttempts <= 0 {
		return fmt.Errorf("BOOKING_MAX_REF_ATTEMPTS must be positive")
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// DSN renders the postgres connection URL.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     fmt.Sprintf("%s:%d", c.Postgres.Host, c.Postgres.Port),
		Path:     c.Postgres.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Postgres.SSLMode),
	}

	return u.String()
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return lvl, nil
}

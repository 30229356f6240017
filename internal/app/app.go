package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/bookit/internal/config"
	"github.com/kirinyoku/bookit/internal/metrics"
	"github.com/kirinyoku/bookit/internal/postgres"
	"github.com/kirinyoku/bookit/internal/redis"
	"github.com/kirinyoku/bookit/internal/repository"
	"github.com/kirinyoku/bookit/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/bookit/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/bookit/internal/repository/redis"
	"github.com/kirinyoku/bookit/internal/seed"
	"github.com/kirinyoku/bookit/internal/service"
	"github.com/kirinyoku/bookit/internal/service/booking"
	httpgin "github.com/kirinyoku/bookit/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	pubsub     *redisrepo.ActivitiesPubSub
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	a := &App{cfg: cfg, logger: logger}

	// Initialize storage
	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// Initialize redis-backed components; all of them are optional
	var (
		cache   *redisrepo.Cache
		limiter *redisrepo.Limiter
		idem    *redisrepo.IdempotencyStore
	)
	if cfg.RedisEnabled() {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		cache = redisrepo.NewCache(rdb, cfg.CacheTTL)
		a.pubsub = redisrepo.NewActivitiesPubSub(rdb)
		limiter, err = redisrepo.NewLimiter(rdb, map[string]redisrepo.Rule{
			httpgin.ScopeBookings: {Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window},
			httpgin.ScopePromo:    {Limit: cfg.RateLimit.PromoLimit, Window: cfg.RateLimit.PromoWindow},
			httpgin.ScopeBooker:   {Limit: cfg.RateLimit.BookerLimit, Window: cfg.RateLimit.BookerWindow},
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)
	} else {
		logger.Warn("REDIS_ADDR not set; caching, rate limiting and idempotency keys are disabled")
	}

	m := metrics.New()

	// Initialize services
	a.services = service.NewServices(store, cache, a.pubsub, m, logger, service.Config{
		Booking: booking.Config{
			MaxReferenceAttempts: cfg.Booking.MaxReferenceAttempts,
			StrictPricing:        cfg.Booking.StrictPricing,
		},
	})

	if cfg.SeedOnStart {
		if _, err := seed.Run(ctx, a.services, time.Now(), logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	// Initialize Gin router
	router := httpgin.NewRouter(httpgin.Deps{
		Services: a.services,
		Idem:     idem,
		Limiter:  limiter,
		Metrics:  m,
		Logger:   logger,
	})

	a.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverMemory:
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return memory.NewStore(), nil
	default:
		dsn := a.cfg.DSN()

		if a.cfg.Storage.MigrateOnStart {
			if err := postgres.Migrate(dsn, a.logger); err != nil {
				return nil, err
			}
		}

		pool, err := postgres.New(ctx, postgres.Config{
			DSN:              dsn,
			MaxConns:         a.cfg.Postgres.MaxConns,
			MinConns:         a.cfg.Postgres.MinConns,
			MaxConnLifetime:  a.cfg.Postgres.ConnLifetime,
			StatementTimeout: a.cfg.Postgres.StatementTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)

		return postgresrepo.NewStore(pool), nil
	}
}

// Services exposes the wired services, mainly for the seed command.
func (a *App) Services() *service.Services { return a.services }

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.Close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Drop cached activities changed by other instances
	if a.pubsub != nil {
		g.Go(func() error {
			err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, id uuid.UUID) {
				a.logger.Debug("activity changed", "activity_id", id)
				a.services.Catalog.InvalidateActivity(ctx, id)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("activity subscription stopped", "error", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

package service

import (
	"log/slog"

	"github.com/kirinyoku/bookit/internal/metrics"
	"github.com/kirinyoku/bookit/internal/reference"
	"github.com/kirinyoku/bookit/internal/repository"
	redisrepo "github.com/kirinyoku/bookit/internal/repository/redis"
	"github.com/kirinyoku/bookit/internal/service/booking"
	"github.com/kirinyoku/bookit/internal/service/catalog"
	"github.com/kirinyoku/bookit/internal/service/promo"
)

type Services struct {
	Catalog  *catalog.Service
	Bookings *booking.Service
	Promos   *promo.Service
}

type Config struct {
	Booking booking.Config
}

// NewServices wires every service to one store. cache, pubsub and m may be
// nil; the services then skip caching, notifications and metrics.
func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.ActivitiesPubSub,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Services {
	promos := promo.New(store, m)

	return &Services{
		Catalog: catalog.New(store, cache, pubsub, m, logger),
		Bookings: booking.New(booking.Deps{
			Store:   store,
			Refs:    reference.Random{},
			Promos:  promos,
			Cache:   cache,
			PubSub:  pubsub,
			Metrics: m,
			Logger:  logger,
		}, cfg.Booking),
		Promos: promos,
	}
}

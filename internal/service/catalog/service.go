package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/metrics"
	"github.com/kirinyoku/bookit/internal/repository"
	redisrepo "github.com/kirinyoku/bookit/internal/repository/redis"
	"github.com/kirinyoku/bookit/internal/uow"
)

type Service struct {
	store   repository.Store
	uow     *uow.UoW
	cache   *redisrepo.Cache
	pubsub  *redisrepo.ActivitiesPubSub
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds the catalog service. cache, pubsub and m may be nil.
func New(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.ActivitiesPubSub,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:   store,
		uow:     uow.NewUoW(store),
		cache:   cache,
		pubsub:  pubsub,
		metrics: m,
		logger:  logger,
	}
}

// Create validates in and stores the activity with its slot tree.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: activity fields; omitted optional fields take catalog defaults.
//
// Returns:
//   - *domain.Activity: the stored activity.
//   - error: catalog.ErrInvalidActivity (wrapped with detail) if in is invalid.
func (s *Service) Create(ctx context.Context, in CreateActivityInput) (*domain.Activity, error) {
	const op = "service.catalog.Create"

	a, err := in.build()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	err = s.store.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
		return tx.Activities().Create(ctx, a)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, invalid("slot labels must be unique"))
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

// List returns activities without slots, filtered by a case-insensitive
// substring of title, location or description.
func (s *Service) List(ctx context.Context, search string) ([]domain.Activity, error) {
	const op = "service.catalog.List"

	activities, err := s.store.Activities().List(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return activities, nil
}

// Get returns the activity with its full slot tree, served from the cache
// when possible.
//
// Returns:
//   - *domain.Activity: the activity.
//   - error: catalog.ErrActivityNotFound if the activity does not exist.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Activity, error) {
	const op = "service.catalog.Get"

	a, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyActivity(id),
		func(ctx context.Context) (domain.Activity, error) {
			a, err := s.store.Activities().Get(ctx, id)
			if err != nil {
				return domain.Activity{}, err
			}
			return *a, nil
		},
	)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrActivityNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &a, nil
}

// ReserveSlot takes qty units from one time slot through the slot ledger
// and returns the updated activity.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: activity ID.
//   - date: slot date label.
//   - time: time slot label.
//   - qty: units to take.
//
// Returns:
//   - *domain.Activity: the activity after the reservation.
//   - error: catalog.ErrInvalidQuantity if qty < 1.
//   - error: catalog.ErrActivityNotFound, ErrDateNotFound or ErrTimeNotFound.
//   - error: *catalog.InsufficientCapacityError if the slot has fewer than qty units.
func (s *Service) ReserveSlot(ctx context.Context, id uuid.UUID, date, time string, qty int) (*domain.Activity, error) {
	const op = "service.catalog.ReserveSlot"

	if qty < 1 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidQuantity)
	}

	var updated *domain.Activity

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		a, err := tx.Activities().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrActivityNotFound
			}

			return err
		}

		if err := locate(a, date, time); err != nil {
			return err
		}

		key := repository.SlotKey{ActivityID: id, Date: date, Time: time}
		if _, err := tx.Slots().Reserve(ctx, key, qty); err != nil {
			var capErr *repository.CapacityError
			if errors.As(err, &capErr) {
				s.metrics.ReservationOutcome("insufficient_capacity")
				return &InsufficientCapacityError{Available: capErr.Available}
			}

			return err
		}

		updated, err = tx.Activities().Get(ctx, id)
		if err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.metrics.ReservationOutcome("reserved")
			s.activityChanged(ctx, id)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return updated, nil
}

// InvalidateActivity drops the cached view of an activity. It backs the
// pubsub subscriber.
func (s *Service) InvalidateActivity(ctx context.Context, id uuid.UUID) {
	if err := s.cache.InvalidateActivity(ctx, id); err != nil {
		s.logger.Warn("invalidate activity cache", "activity_id", id, "error", err)
	}
}

func (s *Service) activityChanged(ctx context.Context, id uuid.UUID) {
	s.InvalidateActivity(ctx, id)

	if err := s.pubsub.PublishActivityChanged(ctx, id); err != nil {
		s.logger.Warn("publish activity changed", "activity_id", id, "error", err)
	}
}

func locate(a *domain.Activity, date, time string) error {
	d, ok := a.FindDate(date)
	if !ok {
		return ErrDateNotFound
	}

	if _, ok := d.FindTime(time); !ok {
		return ErrTimeNotFound
	}

	return nil
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/metrics"
	"github.com/kirinyoku/bookit/internal/reference"
	"github.com/kirinyoku/bookit/internal/repository"
	redisrepo "github.com/kirinyoku/bookit/internal/repository/redis"
	"github.com/kirinyoku/bookit/internal/service/promo"
	"github.com/kirinyoku/bookit/internal/uow"
	"github.com/shopspring/decimal"
)

const defaultMaxReferenceAttempts = 5

type Config struct {
	MaxReferenceAttempts int
	// StrictPricing recomputes every price field server-side and rejects
	// requests whose figures differ.
	StrictPricing bool
}

// Quoter prices a promo code. *promo.Service implements it.
type Quoter interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*promo.Quote, error)
}

type Deps struct {
	Store   repository.Store
	Refs    reference.Generator
	Promos  Quoter
	Cache   *redisrepo.Cache
	PubSub  *redisrepo.ActivitiesPubSub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Service struct {
	store   repository.Store
	uow     *uow.UoW
	refs    reference.Generator
	promos  Quoter
	cache   *redisrepo.Cache
	pubsub  *redisrepo.ActivitiesPubSub
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

func New(deps Deps, cfg Config) *Service {
	if cfg.MaxReferenceAttempts <= 0 {
		cfg.MaxReferenceAttempts = defaultMaxReferenceAttempts
	}

	if deps.Refs == nil {
		deps.Refs = reference.Random{}
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Service{
		store:   deps.Store,
		uow:     uow.NewUoW(deps.Store),
		refs:    deps.Refs,
		promos:  deps.Promos,
		cache:   deps.Cache,
		pubsub:  deps.PubSub,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		cfg:     cfg,
	}
}

type CreateInput struct {
	ActivityID uuid.UUID
	UserName   string
	UserEmail  string
	UserPhone  string
	Date       string
	Time       string
	Quantity   int
	UnitPrice  decimal.Decimal
	Subtotal   decimal.Decimal
	Taxes      decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	PromoCode  string
}

// Create books in.Quantity units of one time slot.
//
// The slot reservation and the booking insert share one unit of work, so a
// rejected or failed request leaves capacity untouched. A confirmed
// booking for the same user and slot is refused both by a pre-check and by
// the storage uniqueness guard that backs it.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: booking request; price fields are stored verbatim unless strict
//     pricing is enabled.
//
// Returns:
//   - *domain.Booking: the confirmed booking.
//   - error: booking.ErrMissingFields, ErrInvalidQuantity or ErrInvalidAmount on bad input.
//   - error: booking.ErrActivityNotFound, ErrDateNotFound or ErrTimeNotFound.
//   - error: booking.ErrDuplicateBooking if the user already holds the slot.
//   - error: *booking.InsufficientCapacityError if the slot cannot take the quantity.
//   - error: booking.ErrPriceMismatch under strict pricing.
//   - error: booking.ErrReferenceExhausted if no free reference was drawn.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Booking, error) {
	const op = "service.booking.Create"

	b, err := s.create(ctx, in)
	s.metrics.BookingOutcome(outcome(err))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*domain.Booking, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	a, err := s.store.Activities().Get(ctx, in.ActivityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrActivityNotFound
		}

		return nil, err
	}

	d, ok := a.FindDate(in.Date)
	if !ok {
		return nil, ErrDateNotFound
	}

	if _, ok := d.FindTime(in.Time); !ok {
		return nil, ErrTimeNotFound
	}

	key := repository.SlotKey{ActivityID: a.ID, Date: in.Date, Time: in.Time}

	exists, err := s.store.Bookings().ExistsConfirmed(ctx, in.UserEmail, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateBooking
	}

	if s.cfg.StrictPricing {
		if err := s.checkPrice(ctx, a, in); err != nil {
			return nil, err
		}
	}

	b := &domain.Booking{
		ActivityID:    a.ID,
		ActivityTitle: a.Title,
		UserName:      in.UserName,
		UserEmail:     in.UserEmail,
		UserPhone:     in.UserPhone,
		Date:          in.Date,
		Time:          in.Time,
		Quantity:      in.Quantity,
		PriceBreakdown: domain.PriceBreakdown{
			UnitPrice: in.UnitPrice,
			Subtotal:  in.Subtotal,
			Taxes:     in.Taxes,
			Discount:  in.Discount,
			Total:     in.Total,
		},
		Status: domain.BookingConfirmed,
	}
	if in.PromoCode != "" {
		code := in.PromoCode
		b.PromoCode = &code
	}

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		if _, err := tx.Slots().Reserve(ctx, key, in.Quantity); err != nil {
			var capErr *repository.CapacityError
			if errors.As(err, &capErr) {
				s.metrics.ReservationOutcome("insufficient_capacity")
				return &InsufficientCapacityError{Available: capErr.Available}
			}

			if errors.Is(err, repository.ErrNotFound) {
				return ErrTimeNotFound
			}

			return err
		}

		if err := s.insertWithFreshRef(ctx, tx, b); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.metrics.ReservationOutcome("reserved")
			s.activityChanged(ctx, a.ID)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// insertWithFreshRef draws references until one inserts cleanly or the
// attempt budget runs out.
func (s *Service) insertWithFreshRef(ctx context.Context, tx repository.Repos, b *domain.Booking) error {
	for attempt := 1; attempt <= s.cfg.MaxReferenceAttempts; attempt++ {
		ref, err := s.refs.Generate()
		if err != nil {
			return err
		}

		b.ID = uuid.Nil
		b.Ref = ref

		err = tx.Bookings().Insert(ctx, b)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrDuplicateReference):
			s.logger.Warn("booking reference collision", "attempt", attempt)
			continue
		case errors.Is(err, repository.ErrDuplicateBooking):
			return ErrDuplicateBooking
		default:
			return err
		}
	}

	return ErrReferenceExhausted
}

func (s *Service) checkPrice(ctx context.Context, a *domain.Activity, in CreateInput) error {
	subtotal := a.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))

	discount := decimal.Zero
	if in.PromoCode != "" {
		if s.promos == nil {
			return &PriceMismatchError{Field: "promoCode"}
		}

		q, err := s.promos.Validate(ctx, in.PromoCode, subtotal)
		if err != nil {
			return err
		}
		discount = q.Discount
	}

	total := subtotal.Add(a.Taxes).Sub(discount)

	for _, f := range []struct {
		name      string
		got, want decimal.Decimal
	}{
		{"price", in.UnitPrice, a.Price},
		{"subtotal", in.Subtotal, subtotal},
		{"taxes", in.Taxes, a.Taxes},
		{"discount", in.Discount, discount},
		{"total", in.Total, total},
	} {
		if !f.got.Equal(f.want) {
			return &PriceMismatchError{Field: f.name, Got: f.got, Want: f.want}
		}
	}

	return nil
}

// Get returns a booking by its public reference, joined with its activity.
//
// Returns:
//   - *domain.BookingWithActivity: the booking.
//   - error: booking.ErrBookingNotFound if no booking carries ref.
func (s *Service) Get(ctx context.Context, ref string) (*domain.BookingWithActivity, error) {
	const op = "service.booking.Get"

	b, err := s.store.Bookings().GetByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// List returns every booking, newest first.
func (s *Service) List(ctx context.Context) ([]domain.BookingWithActivity, error) {
	const op = "service.booking.List"

	bookings, err := s.store.Bookings().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return bookings, nil
}

func (s *Service) activityChanged(ctx context.Context, id uuid.UUID) {
	if err := s.cache.InvalidateActivity(ctx, id); err != nil {
		s.logger.Warn("invalidate activity cache", "activity_id", id, "error", err)
	}

	if err := s.pubsub.PublishActivityChanged(ctx, id); err != nil {
		s.logger.Warn("publish activity changed", "activity_id", id, "error", err)
	}
}

func normalize(in CreateInput) (CreateInput, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	in.UserEmail = domain.NormalizeEmail(in.UserEmail)
	in.UserPhone = strings.TrimSpace(in.UserPhone)
	in.PromoCode = domain.NormalizePromoCode(in.PromoCode)

	if in.ActivityID == uuid.Nil || in.UserName == "" || in.UserEmail == "" ||
		in.UserPhone == "" || in.Date == "" || in.Time == "" {
		return in, ErrMissingFields
	}

	if in.Quantity < 1 {
		return in, ErrInvalidQuantity
	}

	for _, v := range []decimal.Decimal{in.UnitPrice, in.Subtotal, in.Taxes, in.Discount, in.Total} {
		if v.IsNegative() {
			return in, ErrInvalidAmount
		}
	}

	return in, nil
}

func outcome(err error) string {
	var capErr *InsufficientCapacityError

	switch {
	case err == nil:
		return "confirmed"
	case errors.As(err, &capErr):
		return "insufficient_capacity"
	case errors.Is(err, ErrDuplicateBooking):
		return "duplicate"
	case errors.Is(err, ErrActivityNotFound),
		errors.Is(err, ErrDateNotFound),
		errors.Is(err, ErrTimeNotFound):
		return "not_found"
	case errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrPriceMismatch),
		errors.Is(err, promo.ErrPromoNotFound),
		errors.Is(err, promo.ErrPromoExpired),
		errors.Is(err, promo.ErrBelowMinimum):
		return "invalid"
	default:
		return "error"
	}
}

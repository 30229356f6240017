package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/repository"
	"github.com/shopspring/decimal"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert persists a booking.
//
// A reference collision is resolved with ON CONFLICT DO NOTHING so the
// surrounding transaction stays usable for another attempt. A second
// confirmed booking for the same user and slot violates a partial unique
// index and aborts the transaction.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - b: booking to insert; ID and CreatedAt are filled in.
//
// Returns:
//   - error: repository.ErrDuplicateReference if b.Ref is already taken.
//   - error: repository.ErrDuplicateBooking if the user already holds a confirmed booking for the slot.
//   - error: repository.ErrNotFound if the activity does not exist.
func (r *BookingRepo) Insert(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.Insert"

	db := r.handle()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	err := db.QueryRow(ctx,
		`INSERT INTO bookings(id, booking_ref, activity_id, activity_title,
			user_name, user_email, user_phone, slot_date, slot_time, quantity,
			unit_price, subtotal, taxes, discount, total, promo_code, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT ON CONSTRAINT `+constraintBookingRef+` DO NOTHING
		 RETURNING created_at`,
		b.ID, b.Ref, b.ActivityID, b.ActivityTitle,
		b.UserName, b.UserEmail, b.UserPhone, b.Date, b.Time, b.Quantity,
		b.UnitPrice, b.Subtotal, b.Taxes, b.Discount, b.Total, b.PromoCode, string(b.Status),
	).Scan(&b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s:%w", op, repository.ErrDuplicateReference)
	}
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ExistsConfirmed reports whether the user holds a confirmed booking for
// the slot.
func (r *BookingRepo) ExistsConfirmed(ctx context.Context, email string, key repository.SlotKey) (bool, error) {
	const op = "postgresrepo.BookingRepo.ExistsConfirmed"

	db := r.handle()

	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE user_email = $1
				AND activity_id = $2
				AND slot_date = $3
				AND slot_time = $4
				AND status = 'confirmed'
		 )`,
		email, key.ActivityID, key.Date, key.Time,
	).Scan(&exists); err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

// GetByRef retrieves a booking by its public reference, joined with its
// activity (without slots).
//
// Returns:
//   - *domain.BookingWithActivity: the booking when found.
//   - error: repository.ErrNotFound if no booking carries ref.
func (r *BookingRepo) GetByRef(ctx context.Context, ref string) (*domain.BookingWithActivity, error) {
	const op = "postgresrepo.BookingRepo.GetByRef"

	db := r.handle()

	b, err := scanBookingWithActivity(db.QueryRow(ctx,
		bookingSelect+` WHERE b.booking_ref = $1`,
		ref,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// List lists all bookings, newest first.
func (r *BookingRepo) List(ctx context.Context) ([]domain.BookingWithActivity, error) {
	const op = "postgresrepo.BookingRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx, bookingSelect+` ORDER BY b.created_at DESC, b.id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.BookingWithActivity{}
	for rows.Next() {
		b, err := scanBookingWithActivity(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

const bookingSelect = `SELECT b.id, b.booking_ref, b.activity_id, b.activity_title,
	b.user_name, b.user_email, b.user_phone, b.slot_date, b.slot_time, b.quantity,
	b.unit_price, b.subtotal, b.taxes, b.discount, b.total, b.promo_code, b.status, b.created_at,
	a.id, a.title, a.location, a.description, a.image, a.about,
	a.minimum_age, a.duration, a.included, a.price, a.taxes, a.created_at
	FROM bookings b
	LEFT JOIN activities a ON a.id = b.activity_id`

func scanBookingWithActivity(row pgx.Row) (*domain.BookingWithActivity, error) {
	var (
		out    domain.BookingWithActivity
		status string
		a      nullableActivity
	)

	if err := row.Scan(
		&out.ID,
		&out.Ref,
		&out.ActivityID,
		&out.ActivityTitle,
		&out.UserName,
		&out.UserEmail,
		&out.UserPhone,
		&out.Date,
		&out.Time,
		&out.Quantity,
		&out.UnitPrice,
		&out.Subtotal,
		&out.Taxes,
		&out.Discount,
		&out.Total,
		&out.PromoCode,
		&status,
		&out.CreatedAt,
		&a.ID,
		&a.Title,
		&a.Location,
		&a.Description,
		&a.Image,
		&a.About,
		&a.MinimumAge,
		&a.Duration,
		&a.Included,
		&a.Price,
		&a.Taxes,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}

	out.Status = domain.BookingStatus(status)
	out.Activity = a.activity()

	return &out, nil
}

// nullableActivity receives the LEFT JOINed activity columns.
type nullableActivity struct {
	ID          *uuid.UUID
	Title       *string
	Location    *string
	Description *string
	Image       *string
	About       *string
	MinimumAge  *int
	Duration    *string
	Included    []string
	Price       decimal.NullDecimal
	Taxes       decimal.NullDecimal
	CreatedAt   *time.Time
}

func (n nullableActivity) activity() *domain.Activity {
	if n.ID == nil {
		return nil
	}

	return &domain.Activity{
		ID:          *n.ID,
		Title:       *n.Title,
		Location:    *n.Location,
		Description: *n.Description,
		Image:       *n.Image,
		About:       *n.About,
		MinimumAge:  *n.MinimumAge,
		Duration:    *n.Duration,
		Included:    n.Included,
		Price:       n.Price.Decimal,
		Taxes:       n.Taxes.Decimal,
		CreatedAt:   *n.CreatedAt,
	}
}

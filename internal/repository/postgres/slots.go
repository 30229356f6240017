package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bookit/internal/repository"
)

type SlotRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SlotRepo) With(db DB) *SlotRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SlotRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Reserve takes qty units from a time slot.
//
// The capacity check lives in the WHERE clause of a single UPDATE, so the
// row lock taken by Postgres serializes concurrent reservations of the same
// slot: a racer that loses re-evaluates the predicate against the committed
// value and matches no row.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - key: activity, date label and time label of the slot.
//   - qty: number of units to take, must be positive.
//
// Returns:
//   - int: remaining capacity after the decrement.
//   - error: repository.ErrInvalidQuantity if qty is not positive.
//   - error: repository.ErrNotFound if the activity, date or time does not exist.
//   - error: *repository.CapacityError if fewer than qty units are left.
func (r *SlotRepo) Reserve(ctx context.Context, key repository.SlotKey, qty int) (int, error) {
	const op = "postgresrepo.SlotRepo.Reserve"

	if qty <= 0 {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrInvalidQuantity)
	}

	db := r.handle()

	var remaining int
	err := db.QueryRow(ctx,
		`UPDATE time_slots ts
		 SET available_capacity = ts.available_capacity - $4
		 FROM slot_dates sd
		 WHERE ts.slot_date_id = sd.id
		 	AND sd.activity_id = $1
		 	AND sd.label = $2
		 	AND ts.label = $3
		 	AND ts.available_capacity >= $4
		 RETURNING ts.available_capacity`,
		key.ActivityID, key.Date, key.Time, qty,
	).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapDBErr(op, err)
	}

	available, err := r.available(ctx, db, key)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return 0, fmt.Errorf("%s:%w", op, &repository.CapacityError{Available: available})
}

func (r *SlotRepo) available(ctx context.Context, db DB, key repository.SlotKey) (int, error) {
	var available int
	err := db.QueryRow(ctx,
		`SELECT ts.available_capacity
		 FROM time_slots ts
		 JOIN slot_dates sd ON sd.id = ts.slot_date_id
		 WHERE sd.activity_id = $1 AND sd.label = $2 AND ts.label = $3`,
		key.ActivityID, key.Date, key.Time,
	).Scan(&available)

	return available, err
}

package postgresrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bookit/internal/domain"
)

type ActivityRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ActivityRepo) With(db DB) *ActivityRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ActivityRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts an activity together with its slot tree. Call it inside a
// transaction; on the bare pool a failure part-way leaves a partial tree.
func (r *ActivityRepo) Create(ctx context.Context, a *domain.Activity) error {
	const op = "postgresrepo.ActivityRepo.Create"

	db := r.handle()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	if err := db.QueryRow(ctx,
		`INSERT INTO activities(id, title, location, description, image, about,
			minimum_age, duration, included, price, taxes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		a.ID, a.Title, a.Location, a.Description, a.Image, a.About,
		a.MinimumAge, a.Duration, a.Included, a.Price, a.Taxes,
	).Scan(&a.CreatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	for i, d := range a.Slots {
		var dateID int64
		if err := db.QueryRow(ctx,
			`INSERT INTO slot_dates(activity_id, label, position)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			a.ID, d.Date, i,
		).Scan(&dateID); err != nil {
			return wrapDBErr(op, err)
		}

		if len(d.Times) == 0 {
			continue
		}

		batch := &pgx.Batch{}
		for j, t := range d.Times {
			batch.Queue(
				`INSERT INTO time_slots(slot_date_id, label, position, total_capacity, available_capacity)
				 VALUES ($1, $2, $3, $4, $5)`,
				dateID, t.Time, j, t.TotalCapacity, t.AvailableCapacity,
			)
		}
		if err := db.SendBatch(ctx, batch).Close(); err != nil {
			return wrapDBErr(op, err)
		}
	}

	return nil
}

// Get retrieves an activity and its slot tree by ID.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: unique identifier of the activity.
//
// Returns:
//   - *domain.Activity: the activity with dates and times in creation order.
//   - error: repository.ErrNotFound if the activity does not exist.
func (r *ActivityRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Activity, error) {
	const op = "postgresrepo.ActivityRepo.Get"

	db := r.handle()

	a, err := scanActivity(db.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	rows, err := db.Query(ctx,
		`SELECT sd.label, ts.label, ts.total_capacity, ts.available_capacity, ts.status
		 FROM slot_dates sd
		 LEFT JOIN time_slots ts ON ts.slot_date_id = sd.id
		 WHERE sd.activity_id = $1
		 ORDER BY sd.position, ts.position`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	for rows.Next() {
		var (
			date      string
			timeLabel *string
			total     *int
			available *int
			status    *string
		)

		if err := rows.Scan(&date, &timeLabel, &total, &available, &status); err != nil {
			return nil, wrapDBErr(op, err)
		}

		if n := len(a.Slots); n == 0 || a.Slots[n-1].Date != date {
			a.Slots = append(a.Slots, domain.SlotDate{Date: date, Times: []domain.TimeSlot{}})
		}

		if timeLabel == nil {
			continue
		}

		d := &a.Slots[len(a.Slots)-1]
		d.Times = append(d.Times, domain.TimeSlot{
			Time:              *timeLabel,
			TotalCapacity:     *total,
			AvailableCapacity: *available,
			Status:            domain.SlotStatus(*status),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

// List lists activities without their slot trees.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - search: optional case-insensitive substring over title, location and description.
//
// Returns:
//   - []domain.Activity: matching activities, oldest first.
//   - error: if the query fails.
func (r *ActivityRepo) List(ctx context.Context, search string) ([]domain.Activity, error) {
	const op = "postgresrepo.ActivityRepo.List"

	db := r.handle()

	search = strings.TrimSpace(search)

	rows, err := db.Query(ctx,
		`SELECT `+activityColumns+`
		 FROM activities
		 WHERE $1 = ''
		 	OR strpos(lower(title), lower($1)) > 0
		 	OR strpos(lower(location), lower($1)) > 0
		 	OR strpos(lower(description), lower($1)) > 0
		 ORDER BY created_at, id`,
		search,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

const activityColumns = `id, title, location, description, image, about,
	minimum_age, duration, included, price, taxes, created_at`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var a domain.Activity
	if err := row.Scan(
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

	return &a, nil
}

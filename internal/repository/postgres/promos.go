package postgresrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bookit/internal/domain"
)

type PromoRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *PromoRepo) With(db DB) *PromoRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PromoRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *PromoRepo) Create(ctx context.Context, p *domain.PromoCode) error {
	const op = "postgresrepo.PromoRepo.Create"

	db := r.handle()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	if err := db.QueryRow(ctx,
		`INSERT INTO promo_codes(id, code, type, value, description, is_active,
			expires_at, min_order_value, max_discount, usage_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		p.ID, p.Code, string(p.Type), p.Value, p.Description, p.Active,
		p.ExpiresAt, p.MinOrderValue, p.MaxDiscount, p.UsageCount,
	).Scan(&p.CreatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// GetActiveByCode retrieves an active promo code.
//
// Returns:
//   - *domain.PromoCode: the promo when found and active.
//   - error: repository.ErrNotFound if the code is unknown or inactive.
func (r *PromoRepo) GetActiveByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	const op = "postgresrepo.PromoRepo.GetActiveByCode"

	db := r.handle()

	p, err := scanPromo(db.QueryRow(ctx,
		`SELECT `+promoColumns+`
		 FROM promo_codes
		 WHERE code = $1 AND is_active`,
		code,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return p, nil
}

func (r *PromoRepo) List(ctx context.Context) ([]domain.PromoCode, error) {
	const op = "postgresrepo.PromoRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx, `SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at, code`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.PromoCode{}
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

const promoColumns = `id, code, type, value, description, is_active,
	expires_at, min_order_value, max_discount, usage_count, created_at`

func scanPromo(row pgx.Row) (*domain.PromoCode, error) {
	var (
		p   domain.PromoCode
		typ string
	)

	if err := row.Scan(
		&p.ID,
		&p.Code,
		&typ,
		&p.Value,
		&p.Description,
		&p.Active,
		&p.ExpiresAt,
		&p.MinOrderValue,
		&p.MaxDiscount,
		&p.UsageCount,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}

	p.Type = domain.DiscountType(typ)

	return &p, nil
}

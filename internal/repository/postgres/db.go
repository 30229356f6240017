package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bookit/internal/repository"
)

const maxTxAttempts = 3

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// NewStore returns a Store whose transactions run at READ COMMITTED: slot
// capacity is guarded by conditional updates and uniqueness by indexes, so
// nothing relies on serializable snapshots.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		opts: pgx.TxOptions{
			IsoLevel:   pgx.ReadCommitted,
			AccessMode: pgx.ReadWrite,
		},
	}
}

// RunTx runs fn inside a transaction, retrying on serialization failures
// and deadlocks.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	const op = "postgresrepo.Store.RunTx"

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTxOnce(ctx, fn)
		if err == nil || !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Store) runTxOnce(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	tx, err := s.pool.BeginTx(ctx, s.opts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, txRepos{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Activities() repository.ActivityRepo { return &ActivityRepo{pool: s.pool} }
func (s *Store) Slots() repository.SlotLedger        { return &SlotRepo{pool: s.pool} }
func (s *Store) Bookings() repository.BookingRepo    { return &BookingRepo{pool: s.pool} }
func (s *Store) Promos() repository.PromoRepo        { return &PromoRepo{pool: s.pool} }

// txRepos binds every repository to one open transaction.
type txRepos struct {
	db DB
}

func (t txRepos) Activities() repository.ActivityRepo { return (&ActivityRepo{}).With(t.db) }
func (t txRepos) Slots() repository.SlotLedger        { return (&SlotRepo{}).With(t.db) }
func (t txRepos) Bookings() repository.BookingRepo    { return (&BookingRepo{}).With(t.db) }
func (t txRepos) Promos() repository.PromoRepo        { return (&PromoRepo{}).With(t.db) }

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kirinyoku/bookit/internal/domain"
)

// SlotKey addresses one time slot of one activity.
type SlotKey struct {
	ActivityID uuid.UUID
	Date       string
	Time       string
}

type ActivityRepo interface {
	// Create persists a, assigning its ID and CreatedAt.
	Create(ctx context.Context, a *domain.Activity) error
	// Get returns the activity with its full slot tree.
	Get(ctx context.Context, id uuid.UUID) (*domain.Activity, error)
	// List returns activities matching search, without slots, oldest first.
	List(ctx context.Context, search string) ([]domain.Activity, error)
}

// SlotLedger owns slot capacity. Reserve is linearizable per SlotKey: the
// capacity check and the decrement are one indivisible step.
type SlotLedger interface {
	// Reserve takes qty units from the slot and returns the remaining
	// capacity. It fails with ErrInvalidQuantity, ErrNotFound or a
	// *CapacityError.
	Reserve(ctx context.Context, key SlotKey, qty int) (int, error)
}

type BookingRepo interface {
	// Insert persists b, assigning ID and CreatedAt. It fails with
	// ErrDuplicateReference when b.Ref is taken and ErrDuplicateBooking when
	// the user already holds a confirmed booking for the slot.
	Insert(ctx context.Context, b *domain.Booking) error
	ExistsConfirmed(ctx context.Context, email string, key SlotKey) (bool, error)
	GetByRef(ctx context.Context, ref string) (*domain.BookingWithActivity, error)
	// List returns every booking, newest first.
	List(ctx context.Context) ([]domain.BookingWithActivity, error)
}

type PromoRepo interface {
	// Create fails with ErrConflict when the code exists.
	Create(ctx context.Context, p *domain.PromoCode) error
	// GetActiveByCode ignores inactive codes.
	GetActiveByCode(ctx context.Context, code string) (*domain.PromoCode, error)
	List(ctx context.Context) ([]domain.PromoCode, error)
}

// Repos groups the repositories bound to one handle (pool or transaction).
type Repos interface {
	Activities() ActivityRepo
	Slots() SlotLedger
	Bookings() BookingRepo
	Promos() PromoRepo
}

// Store is a Repos that can also open a transaction. Writes made through the
// Repos passed to fn are committed together or not at all.
type Store interface {
	Repos
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
}

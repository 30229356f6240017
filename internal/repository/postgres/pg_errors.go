package postgresrepo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/bookit/internal/repository"
)

const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Constraint names from migrations/0001_init.up.sql.
const (
	constraintBookingRef      = "bookings_booking_ref_key"
	constraintConfirmedBySlot = "bookings_confirmed_slot_key"
	constraintAvailableRange  = "time_slots_available_range"
)

func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return true
		}
	}

	return false
}

func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch pge.Code {
		case codeUniqueViolation:
			switch pge.ConstraintName {
			case constraintBookingRef:
				return repository.ErrDuplicateReference
			case constraintConfirmedBySlot:
				return repository.ErrDuplicateBooking
			}
			return repository.ErrConflict
		case codeForeignKeyViolation:
			return repository.ErrNotFound
		case codeCheckViolation:
			if pge.ConstraintName == constraintAvailableRange {
				return repository.ErrInsufficientCapacity
			}
			return repository.ErrConflict
		}
	}

	return err
}

// wrapDBErr maps common DB errors to repository-level errors and wraps them with
// the provided operation name.
func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s:%w", op, translateDBErr(err))
}

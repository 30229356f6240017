package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrDuplicateBooking     = errors.New("duplicate confirmed booking")
	ErrDuplicateReference   = errors.New("duplicate booking reference")
)

// CapacityError reports the capacity left on a slot that could not satisfy
// a reservation.
type CapacityError struct {
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: %d available", e.Available)
}

func (e *CapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

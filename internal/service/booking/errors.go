package booking

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingFields        = errors.New("missing required fields")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrInvalidAmount        = errors.New("price fields must not be negative")
	ErrActivityNotFound     = errors.New("experience not found")
	ErrDateNotFound         = errors.New("selected date not available")
	ErrTimeNotFound         = errors.New("selected time not available")
	ErrDuplicateBooking     = errors.New("you already have a booking for this slot")
	ErrInsufficientCapacity = errors.New("not enough available slots")
	ErrReferenceExhausted   = errors.New("could not allocate a booking reference")
	ErrPriceMismatch        = errors.New("price does not match the current quote")
	ErrBookingNotFound      = errors.New("booking not found")
)

// InsufficientCapacityError reports how many units the slot still had when
// the reservation was rejected.
type InsufficientCapacityError struct {
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("not enough available slots: %d left", e.Available)
}

func (e *InsufficientCapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

// PriceMismatchError names the first price field that differs from the
// server-side quote.
type PriceMismatchError struct {
	Field string
	Got   decimal.Decimal
	Want  decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("%s is %s, expected %s", e.Field, e.Got, e.Want)
}

func (e *PriceMismatchError) Unwrap() error {
	return ErrPriceMismatch
}

package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidActivity      = errors.New("invalid experience")
	ErrActivityNotFound     = errors.New("experience not found")
	ErrDateNotFound         = errors.New("slot date not found")
	ErrTimeNotFound         = errors.New("time slot not found")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrInsufficientCapacity = errors.New("not enough available slots")
)

// ValidationError explains why an activity was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid experience: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidActivity
}

type InsufficientCapacityError struct {
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("not enough available slots: %d left", e.Available)
}

func (e *InsufficientCapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

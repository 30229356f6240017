package promo

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCodeRequired    = errors.New("promo code is required")
	ErrInvalidSubtotal = errors.New("subtotal must not be negative")
	ErrPromoNotFound   = errors.New("invalid promo code")
	ErrPromoExpired    = errors.New("promo code has expired")
	ErrBelowMinimum    = errors.New("order below minimum value")
	ErrInvalidPromo    = errors.New("invalid promo code definition")
	ErrPromoConflict   = errors.New("promo code already exists")
)

// ValidationError explains why a promo code definition was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid promo code definition: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPromo
}

// BelowMinimumError carries the minimum order value the subtotal missed.
type BelowMinimumError struct {
	Min decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum order value of %s required", e.Min.String())
}

func (e *BelowMinimumError) Unwrap() error {
	return ErrBelowMinimum
}

package promo

import (
	"time"

	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate computes the discount p grants on subtotal at time now. It does
// not look at p.Active; inactive codes never reach it.
//
// Percentage discounts are rounded to whole units, half away from zero,
// then capped by MaxDiscount when it is set and positive. Flat discounts are returned as is,
// even when they exceed the subtotal.
//
// Returns:
//   - decimal.Decimal: the discount amount.
//   - error: ErrPromoExpired if now is after p.ExpiresAt.
//   - error: *BelowMinimumError if subtotal is under p.MinOrderValue.
func Evaluate(p *domain.PromoCode, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if now.After(p.ExpiresAt) {
		return decimal.Zero, ErrPromoExpired
	}

	if subtotal.LessThan(p.MinOrderValue) {
		return decimal.Zero, &BelowMinimumError{Min: p.MinOrderValue}
	}

	switch p.Type {
	case domain.DiscountPercentage:
		discount := subtotal.Mul(p.Value).Div(hundred).Round(0)
		if p.MaxDiscount.Valid && p.MaxDiscount.Decimal.IsPositive() && discount.GreaterThan(p.MaxDiscount.Decimal) {
			discount = p.MaxDiscount.Decimal
		}
		return discount, nil
	case domain.DiscountFlat:
		return p.Value, nil
	}

	return decimal.Zero, nil
}

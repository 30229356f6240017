package promo

import (
	"testing"
	"time"

	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func percentage(value, minOrder, maxDiscount int64) *domain.PromoCode {
	p := &domain.PromoCode{
		Code:          "SAVE10",
		Type:          domain.DiscountPercentage,
		Value:         decimal.NewFromInt(value),
		Active:        true,
		ExpiresAt:     now.Add(24 * time.Hour),
		MinOrderValue: decimal.NewFromInt(minOrder),
	}
	if maxDiscount > 0 {
		p.MaxDiscount = decimal.NewNullDecimal(decimal.NewFromInt(maxDiscount))
	}
	return p
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		promo    *domain.PromoCode
		subtotal int64
		want     int64
	}{
		{"percentage capped", percentage(10, 0, 200), 3000, 200},
		{"percentage under cap", percentage(10, 0, 200), 1000, 100},
		{"percentage without cap", percentage(15, 0, 0), 3000, 450},
		{
			"flat",
			&domain.PromoCode{Type: domain.DiscountFlat, Value: decimal.NewFromInt(100), ExpiresAt: now.Add(time.Hour)},
			800, 100,
		},
		{
			"flat above subtotal is not clamped",
			&domain.PromoCode{Type: domain.DiscountFlat, Value: decimal.NewFromInt(100), ExpiresAt: now.Add(time.Hour)},
			50, 100,
		},
		{"exactly the minimum", percentage(10, 500, 0), 500, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.promo, decimal.NewFromInt(tt.subtotal), now)
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(tt.want).Equal(got), "want %d, got %s", tt.want, got)
		})
	}
}

func TestEvaluate_RoundsHalfUp(t *testing.T) {
	p := percentage(15, 0, 0)

	// 15% of 999 is 149.85.
	got, err := Evaluate(p, decimal.NewFromInt(999), now)
	require.NoError(t, err)
	assert.Equal(t, "150", got.String())

	// 10% of 1005 is 100.5.
	got, err = Evaluate(percentage(10, 0, 0), decimal.NewFromInt(1005), now)
	require.NoError(t, err)
	assert.Equal(t, "101", got.String())
}

func TestEvaluate_BelowMinimum(t *testing.T) {
	_, err := Evaluate(percentage(10, 500, 200), decimal.NewFromInt(400), now)

	var be *BelowMinimumError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "500", be.Min.String())
	assert.ErrorIs(t, err, ErrBelowMinimum)
}

func TestEvaluate_Expired(t *testing.T) {
	p := percentage(10, 0, 200)
	p.ExpiresAt = now.Add(-time.Second)

	_, err := Evaluate(p, decimal.NewFromInt(3000), now)
	assert.ErrorIs(t, err, ErrPromoExpired)
}

func TestEvaluate_ExpiryCheckedBeforeMinimum(t *testing.T) {
	p := percentage(10, 500, 200)
	p.ExpiresAt = now.Add(-time.Hour)

	_, err := Evaluate(p, decimal.NewFromInt(100), now)
	assert.ErrorIs(t, err, ErrPromoExpired)
}

package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/metrics"
	"github.com/kirinyoku/bookit/internal/repository"
	"github.com/shopspring/decimal"
)

// Quote is the result of applying a promo code to a subtotal.
type Quote struct {
	Code        string              `json:"code"`
	Type        domain.DiscountType `json:"type"`
	Value       decimal.Decimal     `json:"value"`
	Discount    decimal.Decimal     `json:"discount"`
	Description string              `json:"description"`
}

type CreateInput struct {
	Code          string
	Type          domain.DiscountType
	Value         decimal.Decimal
	Description   string
	Active        *bool
	ExpiresAt     time.Time
	MinOrderValue decimal.Decimal
	MaxDiscount   decimal.NullDecimal
}

type Service struct {
	repos   repository.Repos
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(repos repository.Repos, m *metrics.Metrics) *Service {
	return &Service{
		repos:   repos,
		metrics: m,
		now:     time.Now,
	}
}

// Validate quotes the discount code grants on subtotal.
//
// Parameters:
//   - ctx: request-scoped context.
//   - code: promo code, matched case-insensitively.
//   - subtotal: order subtotal before taxes.
//
// Returns:
//   - *Quote: the code's terms and the computed discount.
//   - error: promo.ErrCodeRequired if code is blank.
//   - error: promo.ErrInvalidSubtotal if subtotal is negative.
//   - error: promo.ErrPromoNotFound if no active code matches.
//   - error: promo.ErrPromoExpired if the code has expired.
//   - error: *promo.BelowMinimumError if subtotal is under the code's minimum.
func (s *Service) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Quote, error) {
	const op = "service.promo.Validate"

	code = domain.NormalizePromoCode(code)
	if code == "" {
		s.metrics.PromoOutcome("invalid")
		return nil, fmt.Errorf("%s:%w", op, ErrCodeRequired)
	}

	if subtotal.IsNegative() {
		s.metrics.PromoOutcome("invalid")
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSubtotal)
	}

	p, err := s.repos.Promos().GetActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.PromoOutcome("not_found")
			return nil, fmt.Errorf("%s:%w", op, ErrPromoNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	discount, err := Evaluate(p, subtotal, s.now())
	if err != nil {
		switch {
		case errors.Is(err, ErrPromoExpired):
			s.metrics.PromoOutcome("expired")
		case errors.Is(err, ErrBelowMinimum):
			s.metrics.PromoOutcome("below_minimum")
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.metrics.PromoOutcome("applied")

	return &Quote{
		Code:        p.Code,
		Type:        p.Type,
		Value:       p.Value,
		Discount:    discount,
		Description: p.Description,
	}, nil
}

// Create registers a new promo code. Codes are stored upper-cased and are
// active unless in.Active says otherwise.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.PromoCode, error) {
	const op = "service.promo.Create"

	p := &domain.PromoCode{
		Code:          domain.NormalizePromoCode(in.Code),
		Type:          in.Type,
		Value:         in.Value,
		Description:   in.Description,
		Active:        true,
		ExpiresAt:     in.ExpiresAt.UTC(),
		MinOrderValue: in.MinOrderValue,
		MaxDiscount:   in.MaxDiscount,
	}
	if in.Active != nil {
		p.Active = *in.Active
	}

	if err := validate(p); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.repos.Promos().Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrPromoConflict)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}

func (s *Service) List(ctx context.Context) ([]domain.PromoCode, error) {
	const op = "service.promo.List"

	promos, err := s.repos.Promos().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return promos, nil
}

func validate(p *domain.PromoCode) error {
	switch {
	case p.Code == "":
		return &ValidationError{Reason: "code is required"}
	case !p.Type.Valid():
		return &ValidationError{Reason: "type must be percentage or flat"}
	case !p.Value.IsPositive():
		return &ValidationError{Reason: "value must be positive"}
	case p.Type == domain.DiscountPercentage && p.Value.GreaterThan(hundred):
		return &ValidationError{Reason: "percentage must not exceed 100"}
	case p.ExpiresAt.IsZero():
		return &ValidationError{Reason: "expiryDate is required"}
	case p.MinOrderValue.IsNegative():
		return &ValidationError{Reason: "minOrderValue must not be negative"}
	case p.MaxDiscount.Valid && p.MaxDiscount.Decimal.IsNegative():
		return &ValidationError{Reason: "maxDiscount must not be negative"}
	}

	return nil
}

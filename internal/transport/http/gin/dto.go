package httpgin

import (
	"fmt"
	"time"

	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/service/booking"
	"github.com/kirinyoku/bookit/internal/service/catalog"
	"github.com/kirinyoku/bookit/internal/service/promo"
	"github.com/shopspring/decimal"
)

// Envelope wraps every response body.
type Envelope struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	Data           any    `json:"data,omitempty"`
	Count          *int   `json:"count,omitempty"`
	AvailableSlots *int   `json:"availableSlots,omitempty"`
}

type TimeSlotRequest struct {
	Time              string `json:"time"`
	TotalCapacity     *int   `json:"totalCapacity"`
	AvailableCapacity *int   `json:"availableCapacity"`
}

type SlotDateRequest struct {
	Date  string            `json:"date"`
	Times []TimeSlotRequest `json:"times"`
}

type CreateExperienceRequest struct {
	Title       string              `json:"title"`
	Location    string              `json:"location"`
	Description string              `json:"description"`
	Image       string              `json:"image"`
	About       string              `json:"about"`
	MinimumAge  *int                `json:"minimumAge"`
	Duration    string              `json:"duration"`
	Included    []string            `json:"included"`
	Price       decimal.NullDecimal `json:"price" swaggertype:"number"`
	Taxes       decimal.NullDecimal `json:"taxes" swaggertype:"number"`
	Slots       []SlotDateRequest   `json:"slots"`
}

func (r CreateExperienceRequest) input() catalog.CreateActivityInput {
	in := catalog.CreateActivityInput{
		Title:       r.Title,
		Location:    r.Location,
		Description: r.Description,
		Image:       r.Image,
		About:       r.About,
		MinimumAge:  r.MinimumAge,
		Duration:    r.Duration,
		Included:    r.Included,
		Price:       r.Price,
		Taxes:       r.Taxes,
	}

	for _, d := range r.Slots {
		sd := catalog.SlotDateInput{Date: d.Date}
		for _, t := range d.Times {
			sd.Times = append(sd.Times, catalog.TimeSlotInput{
				Time:              t.Time,
				TotalCapacity:     t.TotalCapacity,
				AvailableCapacity: t.AvailableCapacity,
			})
		}
		in.Slots = append(in.Slots, sd)
	}

	return in
}

type UpdateSlotRequest struct {
	Date     string `json:"date" binding:"required"`
	Time     string `json:"time" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

type CreateBookingRequest struct {
	ExperienceID string          `json:"experienceId"`
	UserName     string          `json:"userName"`
	UserEmail    string          `json:"userEmail"`
	UserPhone    string          `json:"userPhone"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price" swaggertype:"number"`
	Subtotal     decimal.Decimal `json:"subtotal" swaggertype:"number"`
	Taxes        decimal.Decimal `json:"taxes" swaggertype:"number"`
	Discount     decimal.Decimal `json:"discount" swaggertype:"number"`
	Total        decimal.Decimal `json:"total" swaggertype:"number"`
	PromoCode    string          `json:"promoCode"`
}

func (r CreateBookingRequest) input() booking.CreateInput {
	return booking.CreateInput{
		UserName:  r.UserName,
		UserEmail: r.UserEmail,
		UserPhone: r.UserPhone,
		Date:      r.Date,
		Time:      r.Time,
		Quantity:  r.Quantity,
		UnitPrice: r.Price,
		Subtotal:  r.Subtotal,
		Taxes:     r.Taxes,
		Discount:  r.Discount,
		Total:     r.Total,
		PromoCode: r.PromoCode,
	}
}

type CreateBookingResponse struct {
	BookingRef string          `json:"bookingRef"`
	Booking    *domain.Booking `json:"booking"`
}

type ValidatePromoRequest struct {
	Code     string           `json:"code"`
	Subtotal *decimal.Decimal `json:"subtotal" swaggertype:"number"`
}

type CreatePromoRequest struct {
	Code          string              `json:"code"`
	Type          string              `json:"type"`
	Value         decimal.Decimal     `json:"value" swaggertype:"number"`
	Description   string              `json:"description"`
	IsActive      *bool               `json:"isActive"`
	ExpiryDate    string              `json:"expiryDate"`
	MinOrderValue decimal.Decimal     `json:"minOrderValue" swaggertype:"number"`
	MaxDiscount   decimal.NullDecimal `json:"maxDiscount" swaggertype:"number"`
}

func (r CreatePromoRequest) input() (promo.CreateInput, error) {
	in := promo.CreateInput{
		Code:          r.Code,
		Type:          domain.DiscountType(r.Type),
		Value:         r.Value,
		Description:   r.Description,
		Active:        r.IsActive,
		MinOrderValue: r.MinOrderValue,
		MaxDiscount:   r.MaxDiscount,
	}

	if r.ExpiryDate != "" {
		t, err := parseDate(r.ExpiryDate)
		if err != nil {
			return in, err
		}
		in.ExpiresAt = t
	}

	return in, nil
}

// parseDate accepts RFC 3339 timestamps and bare dates. A bare date
// expires at the end of that day, UTC.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiryDate %q", s)
	}

	return d.Add(24*time.Hour - time.Nanosecond), nil
}

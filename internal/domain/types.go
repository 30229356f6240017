package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotSoldOut   SlotStatus = "soldout"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFlat
}

type Activity struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Location    string          `json:"location"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	About       string          `json:"about"`
	MinimumAge  int             `json:"minimumAge"`
	Duration    string          `json:"duration"`
	Included    []string        `json:"included"`
	Price       decimal.Decimal `json:"price"`
	Taxes       decimal.Decimal `json:"taxes"`
	Slots       []SlotDate      `json:"slots,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type SlotDate struct {
	Date  string     `json:"date"`
	Times []TimeSlot `json:"times"`
}

type TimeSlot struct {
	Time              string     `json:"time"`
	TotalCapacity     int        `json:"totalCapacity"`
	AvailableCapacity int        `json:"availableCapacity"`
	Status            SlotStatus `json:"status"`
}

type PriceBreakdown struct {
	UnitPrice decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Taxes     decimal.Decimal `json:"taxes"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

type Booking struct {
	ID            uuid.UUID      `json:"id"`
	Ref           string         `json:"bookingRef"`
	ActivityID    uuid.UUID      `json:"experienceId"`
	ActivityTitle string         `json:"experienceTitle"`
	UserName      string         `json:"userName"`
	UserEmail     string         `json:"userEmail"`
	UserPhone     string         `json:"userPhone"`
	Date          string         `json:"date"`
	Time          string         `json:"time"`
	Quantity      int            `json:"quantity"`
	PriceBreakdown
	PromoCode *string       `json:"promoCode"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// BookingWithActivity is a booking joined with the current activity record.
// Activity is nil when the activity no longer exists.
type BookingWithActivity struct {
	Booking
	Activity *Activity `json:"experience"`
}

type PromoCode struct {
	ID            uuid.UUID           `json:"id"`
	Code          string              `json:"code"`
	Type          DiscountType        `json:"type"`
	Value         decimal.Decimal     `json:"value"`
	Description   string              `json:"description"`
	Active        bool                `json:"isActive"`
	ExpiresAt     time.Time           `json:"expiryDate"`
	MinOrderValue decimal.Decimal     `json:"minOrderValue"`
	MaxDiscount   decimal.NullDecimal `json:"maxDiscount"`
	UsageCount    int                 `json:"usageCount"`
	CreatedAt     time.Time           `json:"createdAt"`
}

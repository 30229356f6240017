package catalog

import (
	"fmt"
	"strings"

	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultMinimumAge = 10
	DefaultDuration   = "2-3 hours"
	DefaultCapacity   = 10
)

var (
	DefaultTaxes    = decimal.NewFromInt(59)
	DefaultIncluded = []string{"Certified guide", "Safety gear", "Safety briefing"}
)

type TimeSlotInput struct {
	Time              string
	TotalCapacity     *int
	AvailableCapacity *int
}

type SlotDateInput struct {
	Date  string
	Times []TimeSlotInput
}

type CreateActivityInput struct {
	Title       string
	Location    string
	Description string
	Image       string
	About       string
	MinimumAge  *int
	Duration    string
	Included    []string
	Price       decimal.NullDecimal
	Taxes       decimal.NullDecimal
	Slots       []SlotDateInput
}

// build validates in and fills in defaults.
func (in CreateActivityInput) build() (*domain.Activity, error) {
	a := &domain.Activity{
		Title:       strings.TrimSpace(in.Title),
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
		Image:       in.Image,
		About:       in.About,
		MinimumAge:  DefaultMinimumAge,
		Duration:    DefaultDuration,
		Included:    in.Included,
		Taxes:       DefaultTaxes,
	}

	switch {
	case a.Title == "":
		return nil, invalid("title is required")
	case a.Location == "":
		return nil, invalid("location is required")
	case a.Description == "":
		return nil, invalid("description is required")
	case !in.Price.Valid:
		return nil, invalid("price is required")
	case in.Price.Decimal.IsNegative():
		return nil, invalid("price must not be negative")
	}
	a.Price = in.Price.Decimal

	if in.Taxes.Valid {
		if in.Taxes.Decimal.IsNegative() {
			return nil, invalid("taxes must not be negative")
		}
		a.Taxes = in.Taxes.Decimal
	}

	if in.MinimumAge != nil {
		if *in.MinimumAge < 0 {
			return nil, invalid("minimumAge must not be negative")
		}
		a.MinimumAge = *in.MinimumAge
	}

	if d := strings.TrimSpace(in.Duration); d != "" {
		a.Duration = d
	}

	if a.Included == nil {
		a.Included = append([]string(nil), DefaultIncluded...)
	}

	dates := make(map[string]struct{}, len(in.Slots))
	for _, d := range in.Slots {
		if d.Date == "" {
			return nil, invalid("slot date is required")
		}
		if _, dup := dates[d.Date]; dup {
			return nil, invalid(fmt.Sprintf("duplicate slot date %q", d.Date))
		}
		dates[d.Date] = struct{}{}

		sd := domain.SlotDate{Date: d.Date, Times: make([]domain.TimeSlot, 0, len(d.Times))}
		times := make(map[string]struct{}, len(d.Times))
		for _, t := range d.Times {
			if t.Time == "" {
				return nil, invalid(fmt.Sprintf("time is required on %q", d.Date))
			}
			if _, dup := times[t.Time]; dup {
				return nil, invalid(fmt.Sprintf("duplicate time %q on %q", t.Time, d.Date))
			}
			times[t.Time] = struct{}{}

			ts := domain.TimeSlot{Time: t.Time, TotalCapacity: DefaultCapacity}
			if t.TotalCapacity != nil {
				ts.TotalCapacity = *t.TotalCapacity
			}
			ts.AvailableCapacity = ts.TotalCapacity
			if t.AvailableCapacity != nil {
				ts.AvailableCapacity = *t.AvailableCapacity
			}

			if ts.TotalCapacity < 0 {
				return nil, invalid(fmt.Sprintf("totalCapacity must not be negative at %s %s", d.Date, t.Time))
			}
			if ts.AvailableCapacity < 0 || ts.AvailableCapacity > ts.TotalCapacity {
				return nil, invalid(fmt.Sprintf("availableCapacity must be within 0..%d at %s %s",
					ts.TotalCapacity, d.Date, t.Time))
			}

			ts.Refresh()
			sd.Times = append(sd.Times, ts)
		}

		a.Slots = append(a.Slots, sd)
	}

	return a, nil
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

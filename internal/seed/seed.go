// Package seed loads demo experiences and promo codes.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/service"
	"github.com/kirinyoku/bookit/internal/service/catalog"
	"github.com/kirinyoku/bookit/internal/service/promo"
	"github.com/shopspring/decimal"
)

const (
	days        = 5
	description = "Curated small-group experience. Certified guide. Safety first with gear included."
)

// slotTemplate is the capacity layout every seeded date gets.
var slotTemplate = []struct {
	time      string
	available int
}{
	{"07:00 am", 4},
	{"09:00 am", 2},
	{"11:00 am", 5},
	{"01:00 pm", 0},
	{"03:00 pm", 8},
	{"05:00 pm", 6},
}

const slotCapacity = 10

type experience struct {
	title, location, image, about, duration string
	price, minAge                           int
	included                                []string
}

var experiences = []experience{
	{"Kayaking", "Udupi", "https://images.unsplash.com/photo-1544551763-46a013bb70d5?w=800",
		"Scenic routes, trained guides, and safety briefing. Minimum age 10.", "2-3 hours", 999, 10,
		[]string{"Certified guide", "Safety gear", "Kayak equipment", "Life jackets", "Safety briefing"}},
	{"Nandi Hills Sunrise", "Bangalore", "https://images.unsplash.com/photo-1506905925346-21bda4d32df4?w=800",
		"Early morning trek to witness breathtaking sunrise views. Includes transportation and breakfast.", "4-5 hours", 899, 8,
		[]string{"Certified guide", "Transportation", "Breakfast", "Photography spots"}},
	{"Coffee Trail", "Coorg", "https://images.unsplash.com/photo-1447933601403-0c6688de566e?w=800",
		"Explore coffee plantations, learn about coffee making process. Includes coffee tasting session.", "3-4 hours", 1299, 12,
		[]string{"Expert guide", "Plantation tour", "Coffee tasting", "Refreshments"}},
	{"Kayaking", "Udupi, Karnataka", "https://images.unsplash.com/photo-1502933691298-84fc14542831?w=800",
		"Paddle through serene backwaters with experienced guides. Perfect for beginners.", "2-3 hours", 999, 10,
		[]string{"Professional guide", "All equipment", "Safety gear", "Basic training"}},
	{"Nandi Hills Sunrise", "Bangalore", "https://images.unsplash.com/photo-1540979388789-6cee28a1cdc9?w=800",
		"Witness the magical sunrise from 1478m altitude. Includes guided trek and breakfast.", "4-5 hours", 899, 8,
		[]string{"Experienced guide", "Round trip transport", "Light breakfast", "First aid kit"}},
	{"Boat Cruise", "Sunderban", "https://images.unsplash.com/photo-1544551763-92990d835876?w=800",
		"Enjoy a relaxing boat cruise through the mangrove forests. Wildlife spotting opportunities.", "3-4 hours", 999, 5,
		[]string{"Licensed captain", "Life jackets", "Refreshments", "Wildlife guide"}},
	{"Bunjee Jumping", "Manali", "https://images.unsplash.com/photo-1518135714426-c18f5ffb6f4d?w=800",
		"Experience the ultimate adrenaline rush with our certified instructors and top safety equipment.", "1-2 hours", 999, 18,
		[]string{"Certified instructor", "Safety harness", "Insurance", "Video recording"}},
	{"Coffee Trail", "Coorg", "https://images.unsplash.com/photo-1509042239860-f550ce710b93?w=800",
		"Walk through lush coffee estates, learn about cultivation, and enjoy fresh brew.", "3-4 hours", 1299, 10,
		[]string{"Local expert", "Estate tour", "Coffee samples", "Traditional lunch"}},
}

type promoCode struct {
	code        string
	typ         domain.DiscountType
	value       int64
	description string
	minOrder    int64
	maxDiscount int64
}

var promoCodes = []promoCode{
	{"SAVE10", domain.DiscountPercentage, 10, "Get 10% off on your booking", 500, 200},
	{"FLAT100", domain.DiscountFlat, 100, "Flat ₹100 off on bookings", 800, 0},
	{"FIRSTBOOK", domain.DiscountPercentage, 15, "First booking special - 15% off", 1000, 300},
	{"WEEKEND50", domain.DiscountFlat, 50, "Weekend special offer", 500, 0},
}

type Result struct {
	Experiences int
	Promos      int
}

// Run creates the demo catalog when it is empty and registers any missing
// promo codes. Dates start at now and run for five days; promo codes
// expire a year after now.
func Run(ctx context.Context, svcs *service.Services, now time.Time, logger *slog.Logger) (Result, error) {
	const op = "seed.Run"

	if logger == nil {
		logger = slog.Default()
	}

	var res Result

	existing, err := svcs.Catalog.List(ctx, "")
	if err != nil {
		return res, fmt.Errorf("%s:%w", op, err)
	}

	if len(existing) == 0 {
		dates := Dates(now, days)
		for _, e := range experiences {
			if _, err := svcs.Catalog.Create(ctx, e.input(dates)); err != nil {
				return res, fmt.Errorf("%s: experience %q:%w", op, e.title, err)
			}
			res.Experiences++
		}
	} else {
		logger.Info("catalog not empty, skipping experiences", "count", len(existing))
	}

	for _, p := range promoCodes {
		_, err := svcs.Promos.Create(ctx, p.input(now.AddDate(1, 0, 0)))
		if errors.Is(err, promo.ErrPromoConflict) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("%s: promo %q:%w", op, p.code, err)
		}
		res.Promos++
	}

	logger.Info("seed complete", "experiences", res.Experiences, "promos", res.Promos)

	return res, nil
}

// Dates returns n consecutive date labels such as "Oct 14" starting at now.
func Dates(now time.Time, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, now.AddDate(0, 0, i).Format("Jan 2"))
	}
	return out
}

func (e experience) input(dates []string) catalog.CreateActivityInput {
	minAge := e.minAge

	in := catalog.CreateActivityInput{
		Title:       e.title,
		Location:    e.location,
		Description: description,
		Image:       e.image,
		About:       e.about,
		MinimumAge:  &minAge,
		Duration:    e.duration,
		Included:    e.included,
		Price:       decimal.NewNullDecimal(decimal.NewFromInt(int64(e.price))),
		Taxes:       decimal.NewNullDecimal(catalog.DefaultTaxes),
	}

	for _, d := range dates {
		sd := catalog.SlotDateInput{Date: d}
		for _, t := range slotTemplate {
			total, available := slotCapacity, t.available
			sd.Times = append(sd.Times, catalog.TimeSlotInput{
				Time:              t.time,
				TotalCapacity:     &total,
				AvailableCapacity: &available,
			})
		}
		in.Slots = append(in.Slots, sd)
	}

	return in
}

func (p promoCode) input(expires time.Time) promo.CreateInput {
	in := promo.CreateInput{
		Code:          p.code,
		Type:          p.typ,
		Value:         decimal.NewFromInt(p.value),
		Description:   p.description,
		ExpiresAt:     expires,
		MinOrderValue: decimal.NewFromInt(p.minOrder),
	}
	if p.maxDiscount > 0 {
		in.MaxDiscount = decimal.NewNullDecimal(decimal.NewFromInt(p.maxDiscount))
	}
	return in
}

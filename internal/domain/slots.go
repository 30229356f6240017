package domain

import "strings"

// DeriveStatus is the only place slot status is computed.
func DeriveStatus(available int) SlotStatus {
	if available == 0 {
		return SlotSoldOut
	}
	return SlotAvailable
}

// Refresh recomputes Status from AvailableCapacity.
func (t *TimeSlot) Refresh() {
	t.Status = DeriveStatus(t.AvailableCapacity)
}

// FindDate returns the slot date with the given label.
func (a *Activity) FindDate(date string) (*SlotDate, bool) {
	for i := range a.Slots {
		if a.Slots[i].Date == date {
			return &a.Slots[i], true
		}
	}
	return nil, false
}

// FindTime returns the time slot with the given label.
func (d *SlotDate) FindTime(time string) (*TimeSlot, bool) {
	for i := range d.Times {
		if d.Times[i].Time == time {
			return &d.Times[i], true
		}
	}
	return nil, false
}

// Matches reports whether q occurs, case-insensitively, in the title,
// location or description. An empty query matches everything.
func (a *Activity) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Title), q) ||
		strings.Contains(strings.ToLower(a.Location), q) ||
		strings.Contains(strings.ToLower(a.Description), q)
}

// WithoutSlots returns a shallow copy with the slot tree dropped.
func (a Activity) WithoutSlots() Activity {
	a.Slots = nil
	return a
}

func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

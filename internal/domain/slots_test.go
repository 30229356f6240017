package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, SlotSoldOut, DeriveStatus(0))
	assert.Equal(t, SlotAvailable, DeriveStatus(1))
	assert.Equal(t, SlotAvailable, DeriveStatus(10))
}

func TestActivityFindSlot(t *testing.T) {
	a := Activity{Slots: []SlotDate{
		{Date: "Oct 14", Times: []TimeSlot{{Time: "07:00 am", TotalCapacity: 10, AvailableCapacity: 4}}},
		{Date: "Oct 15", Times: []TimeSlot{{Time: "09:00 am", TotalCapacity: 10, AvailableCapacity: 0}}},
	}}

	d, ok := a.FindDate("Oct 15")
	require.True(t, ok)

	ts, ok := d.FindTime("09:00 am")
	require.True(t, ok)
	assert.Equal(t, 0, ts.AvailableCapacity)

	// returned pointers alias the tree
	ts.AvailableCapacity = 3
	ts.Refresh()
	assert.Equal(t, 3, a.Slots[1].Times[0].AvailableCapacity)
	assert.Equal(t, SlotAvailable, a.Slots[1].Times[0].Status)

	_, ok = a.FindDate("Oct 16")
	assert.False(t, ok)

	_, ok = d.FindTime("07:00 am")
	assert.False(t, ok)
}

func TestActivityMatches(t *testing.T) {
	a := Activity{Title: "Kayaking", Location: "Udupi", Description: "Certified guide"}

	assert.True(t, a.Matches(""))
	assert.True(t, a.Matches("kayak"))
	assert.True(t, a.Matches("UDUPI"))
	assert.True(t, a.Matches(" guide "))
	assert.False(t, a.Matches("coffee"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizePromoCode("  save10 "))
	assert.Equal(t, "jane@example.com", NormalizeEmail(" Jane@Example.COM"))
}

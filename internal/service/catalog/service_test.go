package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/repository/memory"
	redisrepo "github.com/kirinyoku/bookit/internal/repository/redis"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func kayaking() CreateActivityInput {
	return CreateActivityInput{
		Title:       "Kayaking",
		Location:    "Udupi, Karnataka",
		Description: "Curated small-group experience.",
		Price:       decimal.NewNullDecimal(decimal.NewFromInt(999)),
		Slots: []SlotDateInput{
			{Date: "Oct 22", Times: []TimeSlotInput{
				{Time: "07:00 am", TotalCapacity: intp(10), AvailableCapacity: intp(4)},
				{Time: "01:00 pm", TotalCapacity: intp(10), AvailableCapacity: intp(0)},
				{Time: "03:00 pm"},
			}},
		},
	}
}

func TestCreate_AppliesDefaults(t *testing.T) {
	s := New(memory.NewStore(), nil, nil, nil, nil)

	a, err := s.Create(context.Background(), kayaking())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, DefaultMinimumAge, a.MinimumAge)
	assert.Equal(t, DefaultDuration, a.Duration)
	assert.Equal(t, DefaultIncluded, a.Included)
	assert.True(t, DefaultTaxes.Equal(a.Taxes))

	times := a.Slots[0].Times
	assert.Equal(t, domain.SlotAvailable, times[0].Status)
	assert.Equal(t, domain.SlotSoldOut, times[1].Status)
	assert.Equal(t, DefaultCapacity, times[2].TotalCapacity)
	assert.Equal(t, DefaultCapacity, times[2].AvailableCapacity)
}

func TestCreate_Validation(t *testing.T) {
	s := New(memory.NewStore(), nil, nil, nil, nil)
	ctx := context.Background()

	tests := map[string]func(in *CreateActivityInput){
		"missing title":       func(in *CreateActivityInput) { in.Title = " " },
		"missing location":    func(in *CreateActivityInput) { in.Location = "" },
		"missing description": func(in *CreateActivityInput) { in.Description = "" },
		"missing price":       func(in *CreateActivityInput) { in.Price = decimal.NullDecimal{} },
		"negative price": func(in *CreateActivityInput) {
			in.Price = decimal.NewNullDecimal(decimal.NewFromInt(-1))
		},
		"available above total": func(in *CreateActivityInput) {
			in.Slots[0].Times[0].AvailableCapacity = intp(11)
		},
		"negative available": func(in *CreateActivityInput) {
			in.Slots[0].Times[0].AvailableCapacity = intp(-1)
		},
		"duplicate date": func(in *CreateActivityInput) {
			in.Slots = append(in.Slots, SlotDateInput{Date: "Oct 22"})
		},
		"duplicate time": func(in *CreateActivityInput) {
			in.Slots[0].Times = append(in.Slots[0].Times, TimeSlotInput{Time: "07:00 am"})
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := kayaking()
			mutate(&in)

			_, err := s.Create(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidActivity)
		})
	}
}

func TestList_SearchesAndOmitsSlots(t *testing.T) {
	s := New(memory.NewStore(), nil, nil, nil, nil)
	ctx := context.Background()

	_, err := s.Create(ctx, kayaking())
	require.NoError(t, err)

	trek := kayaking()
	trek.Title = "Nandi Hills Sunrise"
	trek.Location = "Bangalore"
	_, err = s.Create(ctx, trek)
	require.NoError(t, err)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hits, err := s.List(ctx, "KAYAK")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Kayaking", hits[0].Title)
	assert.Nil(t, hits[0].Slots)

	hits, err = s.List(ctx, "bangalore")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestGet_NotFound(t *testing.T) {
	s := New(memory.NewStore(), nil, nil, nil, nil)

	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

func TestReserveSlot(t *testing.T) {
	s := New(memory.NewStore(), nil, nil, nil, nil)
	ctx := context.Background()

	a, err := s.Create(ctx, kayaking())
	require.NoError(t, err)

	updated, err := s.ReserveSlot(ctx, a.ID, "Oct 22", "07:00 am", 4)
	require.NoError(t, err)
	ts := updated.Slots[0].Times[0]
	assert.Equal(t, 0, ts.AvailableCapacity)
	assert.Equal(t, domain.SlotSoldOut, ts.Status)

	_, err = s.ReserveSlot(ctx, a.ID, "Oct 22", "07:00 am", 1)
	var capErr *InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 0, capErr.Available)

	_, err = s.ReserveSlot(ctx, a.ID, "Oct 23", "07:00 am", 1)
	assert.ErrorIs(t, err, ErrDateNotFound)

	_, err = s.ReserveSlot(ctx, a.ID, "Oct 22", "09:00 am", 1)
	assert.ErrorIs(t, err, ErrTimeNotFound)

	_, err = s.ReserveSlot(ctx, uuid.New(), "Oct 22", "07:00 am", 1)
	assert.ErrorIs(t, err, ErrActivityNotFound)

	_, err = s.ReserveSlot(ctx, a.ID, "Oct 22", "03:00 pm", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReserveSlot_InvalidatesCachedActivity(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := New(memory.NewStore(), redisrepo.NewCache(rdb, time.Minute), redisrepo.NewActivitiesPubSub(rdb), nil, nil)
	ctx := context.Background()

	a, err := s.Create(ctx, kayaking())
	require.NoError(t, err)

	cached, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, cached.Slots[0].Times[0].AvailableCapacity)
	assert.True(t, mr.Exists(redisrepo.KeyActivity(a.ID)))

	_, err = s.ReserveSlot(ctx, a.ID, "Oct 22", "07:00 am", 1)
	require.NoError(t, err)
	assert.False(t, mr.Exists(redisrepo.KeyActivity(a.ID)))

	fresh, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Slots[0].Times[0].AvailableCapacity)
	assert.True(t, a.Price.Equal(fresh.Price))
}

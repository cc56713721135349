package market

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceEntrySetBuyEviction(t *testing.T) {
	s := NewPriceEntrySet(3, LowerIsBetter)
	s.Insert(PriceEntry{Waypoint: "X1-A1", Price: 100})
	s.Insert(PriceEntry{Waypoint: "X1-A2", Price: 120})
	s.Insert(PriceEntry{Waypoint: "X1-A3", Price: 110})

	// Cheaper than the worst: the 120 entry goes.
	s.Insert(PriceEntry{Waypoint: "X1-A4", Price: 90})
	assert.Equal(t, []PriceEntry{
		{Waypoint: "X1-A4", Price: 90},
		{Waypoint: "X1-A1", Price: 100},
		{Waypoint: "X1-A3", Price: 110},
	}, s.Entries())

	// More expensive than everything: rejected, membership unchanged.
	before := s.Entries()
	s.Insert(PriceEntry{Waypoint: "X1-A5", Price: 500})
	assert.Equal(t, before, s.Entries())
	assert.Equal(t, 3, s.Len())
}

func TestPriceEntrySetSellEviction(t *testing.T) {
	s := NewPriceEntrySet(2, HigherIsBetter)
	s.Insert(PriceEntry{Waypoint: "X1-A1", Price: 100})
	s.Insert(PriceEntry{Waypoint: "X1-A2", Price: 150})
	s.Insert(PriceEntry{Waypoint: "X1-A3", Price: 120})

	assert.Equal(t, []PriceEntry{
		{Waypoint: "X1-A2", Price: 150},
		{Waypoint: "X1-A3", Price: 120},
	}, s.Entries())

	best, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, "X1-A2", best.Waypoint)
}

func TestPriceEntrySetUpdatesWaypointInPlace(t *testing.T) {
	s := NewPriceEntrySet(2, LowerIsBetter)
	s.Insert(PriceEntry{Waypoint: "X1-A1", Price: 100})
	s.Insert(PriceEntry{Waypoint: "X1-A1", Price: 140})

	assert.Equal(t, []PriceEntry{{Waypoint: "X1-A1", Price: 140}}, s.Entries())
}

func TestPriceEntrySetTieKeepsIncumbent(t *testing.T) {
	s := NewPriceEntrySet(1, LowerIsBetter)
	s.Insert(PriceEntry{Waypoint: "X1-A1", Price: 100})
	s.Insert(PriceEntry{Waypoint: "X1-A2", Price: 100})

	assert.Equal(t, []PriceEntry{{Waypoint: "X1-A1", Price: 100}}, s.Entries())
}

func TestPriceEntrySetBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	buy := NewPriceEntrySet(4, LowerIsBetter)
	sell := NewPriceEntrySet(4, HigherIsBetter)

	for i := 0; i < 500; i++ {
		wp := string(rune('A' + rng.Intn(20)))
		price := rng.Intn(1000)
		buy.Insert(PriceEntry{Waypoint: wp, Price: price})
		sell.Insert(PriceEntry{Waypoint: wp, Price: price})
		require.LessOrEqual(t, buy.Len(), 4)
		require.LessOrEqual(t, sell.Len(), 4)
	}
}

func TestPriceEntrySetEmpty(t *testing.T) {
	s := NewPriceEntrySet(0, LowerIsBetter)
	_, ok := s.Best()
	assert.False(t, ok)
	assert.Empty(t, s.Entries())
}

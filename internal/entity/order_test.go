package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func line(millID int64, weight string) *OrderLine {
	return &OrderLine{
		MillID:    millID,
		Weight:    decimal.RequireFromString(weight),
		UnitPrice: decimal.RequireFromString("24.50"),
		LineTotal: decimal.RequireFromString(weight).Mul(decimal.RequireFromString("24.50")).Round(2),
	}
}

func TestOrderTotalWeight(t *testing.T) {
	order := &Order{Lines: []*OrderLine{line(1, "150.00"), line(1, "140.00")}}
	require.True(t, order.TotalWeight().Equal(decimal.RequireFromString("290.00")))
}

func TestOrderTotalWeightNoLines(t *testing.T) {
	order := &Order{}
	require.True(t, order.TotalWeight().IsZero())
}

func TestOrderTotalAmount(t *testing.T) {
	order := &Order{Lines: []*OrderLine{line(1, "100.00"), line(2, "50.00")}}
	require.True(t, order.TotalAmount().Equal(decimal.RequireFromString("3675.00")))
}

func TestDominantMillID(t *testing.T) {
	order := &Order{Lines: []*OrderLine{line(1, "100.00"), line(2, "180.00"), line(1, "50.00")}}
	millID, ok := order.DominantMillID()
	require.True(t, ok)
	require.Equal(t, int64(2), millID)
}

func TestDominantMillIDTieGoesToLowestID(t *testing.T) {
	order := &Order{Lines: []*OrderLine{line(7, "150.00"), line(3, "150.00")}}
	millID, ok := order.DominantMillID()
	require.True(t, ok)
	require.Equal(t, int64(3), millID)
}

func TestDominantMillIDNoLines(t *testing.T) {
	order := &Order{}
	_, ok := order.DominantMillID()
	require.False(t, ok)
}

func TestEffectiveDatePrefersPickup(t *testing.T) {
	orderDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	pickupDate := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	order := &Order{OrderDate: orderDate}
	require.Equal(t, orderDate, order.EffectiveDate())

	order.PickupDate = &pickupDate
	require.Equal(t, pickupDate, order.EffectiveDate())
}

func TestAttached(t *testing.T) {
	order := &Order{}
	require.False(t, order.Attached())

	loadID := int64(4)
	order.LoadID = &loadID
	require.True(t, order.Attached())
}

package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadRemainingCapacity(t *testing.T) {
	load := &Load{TotalWeight: decimal.RequireFromString("290.00")}
	require.True(t, load.RemainingCapacity().Equal(decimal.RequireFromString("10.00")))
}

func TestLoadCompleteAtThreshold(t *testing.T) {
	load := &Load{TotalWeight: decimal.RequireFromString("279.99")}
	require.False(t, load.Complete())

	load.TotalWeight = decimal.RequireFromString("280.00")
	require.True(t, load.Complete())
}

func TestLoadFillPercentCapped(t *testing.T) {
	load := &Load{TotalWeight: decimal.RequireFromString("150.00")}
	require.True(t, load.FillPercent().Equal(decimal.RequireFromString("50")))

	load.TotalWeight = decimal.RequireFromString("320.00")
	require.True(t, load.FillPercent().Equal(decimal.NewFromInt(100)))
}

func TestLoadOpen(t *testing.T) {
	for state, open := range map[string]bool{
		LoadStateDraft:     true,
		LoadStateAssigned:  true,
		LoadStatePickedUp:  false,
		LoadStateDelivered: false,
	} {
		load := &Load{State: state}
		require.Equal(t, open, load.Open(), state)
	}
}

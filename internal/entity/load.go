package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Load lifecycle states. Transitions only move forward, one step at a time:
// draft -> assigned -> picked_up -> delivered.
const (
	LoadStateDraft     = "draft"
	LoadStateAssigned  = "assigned"
	LoadStatePickedUp  = "picked_up"
	LoadStateDelivered = "delivered"
)

// Domain thresholds in weight units (hundredweight-equivalent).
var (
	// MaxLoadWeight is the hard capacity ceiling for one transport.
	MaxLoadWeight = decimal.NewFromInt(300)
	// MinLoadWeight is the minimum for a load to be worth dispatching.
	MinLoadWeight = decimal.NewFromInt(280)
	// SingleOrderThreshold lets one large order become a load on its own.
	SingleOrderThreshold = decimal.NewFromInt(280)
)

// Load aggregates orders that share a mill and type for a single transport.
// TotalWeight is denormalised from the member orders' lines and must be
// resynchronised on every membership change.
type Load struct {
	bun.BaseModel `bun:"table:loads"`

	ID          int64           `bun:",pk,autoincrement"`
	MillID      int64           `bun:"mill_id,notnull"`
	Type        string          `bun:"type,notnull"`
	CarrierID   *int64          `bun:"carrier_id"`
	PickupDate  *time.Time      `bun:"pickup_date"`
	State       string          `bun:"state,notnull,default:'draft'"`
	TotalWeight decimal.Decimal `bun:"total_weight,notnull"`
	Notes       string          `bun:"notes,nullzero"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time       `bun:"updated_at,nullzero"`
}

// RemainingCapacity is the weight still available under the hard cap.
func (l *Load) RemainingCapacity() decimal.Decimal {
	return MaxLoadWeight.Sub(l.TotalWeight)
}

// Complete reports whether the load has reached the minimum threshold.
func (l *Load) Complete() bool {
	return l.TotalWeight.GreaterThanOrEqual(MinLoadWeight)
}

// FillPercent is the load's completion against the capacity ceiling, capped
// at 100.
func (l *Load) FillPercent() decimal.Decimal {
	pct := l.TotalWeight.Div(MaxLoadWeight).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return pct
}

// Open reports whether membership can still change (draft or assigned).
func (l *Load) Open() bool {
	return l.State == LoadStateDraft || l.State == LoadStateAssigned
}

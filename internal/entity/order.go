package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order types. An order is either bulk or palletised, fixed at entry time.
const (
	OrderTypeBulk    = "bulk"
	OrderTypePallets = "pallets"
)

// Logistics statuses trace an order through the shipment pipeline.
const (
	LogisticsOpen      = "open"      // not on any load
	LogisticsClustered = "clustered" // grouped into a draft load
	LogisticsInLoad    = "in_load"   // load assigned to a carrier
	LogisticsShipped   = "shipped"   // picked up at the mill
)

// Legacy order statuses, mirrored for older reporting queries.
const (
	LegacyStatusEntered  = "entered"
	LegacyStatusPickedUp = "picked_up"
)

// Order represents a client purchase stored in the relational database.
// An order belongs to at most one load at a time; LoadID is nil while open.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID             int64      `bun:",pk,autoincrement"`
	ClientID       int64      `bun:"client_id,notnull"`
	OrderDate      time.Time  `bun:"order_date,notnull"`
	PickupDate     *time.Time `bun:"pickup_date"`
	CollectionDate *time.Time `bun:"collection_date"`
	Type           string     `bun:"type,notnull"`
	CarrierID      *int64     `bun:"carrier_id"`
	LoadID         *int64     `bun:"load_id"`

	Status          string `bun:"status,default:'entered'"`
	LogisticsStatus string `bun:"logistics_status,notnull,default:'open'"`

	EmailSentAt *time.Time `bun:"email_sent_at"`
	Notes       string     `bun:"notes,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero"`

	Lines []*OrderLine `bun:"rel:has-many,join:id=order_id"`
}

// OrderLine is one product/quantity/price entry within an order. Lines are
// owned exclusively by their order and are deleted with it.
type OrderLine struct {
	bun.BaseModel `bun:"table:order_lines,alias:ol"`

	ID        int64            `bun:",pk,autoincrement"`
	OrderID   int64            `bun:"order_id,notnull"`
	ProductID int64            `bun:"product_id,notnull"`
	MillID    int64            `bun:"mill_id,notnull"`
	Pallets   *decimal.Decimal `bun:"pallets"`
	Weight    decimal.Decimal  `bun:"weight,notnull"`
	UnitPrice decimal.Decimal  `bun:"unit_price,notnull"`
	LineTotal decimal.Decimal  `bun:"line_total,notnull"`
}

// TotalWeight sums the weight of all lines.
func (o *Order) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Weight)
	}
	return total
}

// TotalAmount sums the line totals of all lines.
func (o *Order) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// DominantMillID returns the mill accounting for the largest share of the
// order's weight. When two mills tie exactly, the lowest mill id wins so the
// result is deterministic. Returns false when the order has no lines.
func (o *Order) DominantMillID() (int64, bool) {
	if len(o.Lines) == 0 {
		return 0, false
	}

	byMill := make(map[int64]decimal.Decimal, len(o.Lines))
	for _, line := range o.Lines {
		byMill[line.MillID] = byMill[line.MillID].Add(line.Weight)
	}

	var (
		bestID     int64
		bestWeight decimal.Decimal
		found      bool
	)
	for millID, weight := range byMill {
		switch {
		case !found,
			weight.GreaterThan(bestWeight),
			weight.Equal(bestWeight) && millID < bestID:
			bestID = millID
			bestWeight = weight
			found = true
		}
	}
	return bestID, found
}

// EffectiveDate is the pickup date when set, otherwise the order date. Used
// by the suggestion engine to keep combined orders close in time.
func (o *Order) EffectiveDate() time.Time {
	if o.PickupDate != nil {
		return *o.PickupDate
	}
	return o.OrderDate
}

// Attached reports whether the order currently belongs to a load.
func (o *Order) Attached() bool {
	return o.LoadID != nil
}

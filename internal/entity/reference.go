package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Client is a flour buyer. DeferredPayment marks clients paying via bank
// collection order; their orders get a collection date of end-of-month of the
// pickup date plus sixty days.
type Client struct {
	bun.BaseModel `bun:"table:clients"`

	ID              int64  `bun:",pk,autoincrement"`
	Name            string `bun:"name,notnull"`
	VATNumber       string `bun:"vat_number,nullzero"`
	DeliveryAddress string `bun:"delivery_address,nullzero"`
	Phone           string `bun:"phone,nullzero"`
	Mobile          string `bun:"mobile,nullzero"`
	Email           string `bun:"email,nullzero"`
	ContactPerson   string `bun:"contact_person,nullzero"`
	StandardPallet  string `bun:"standard_pallet,nullzero"`
	DeferredPayment bool   `bun:"deferred_payment,notnull,default:false"`
	Notes           string `bun:"notes,nullzero"`
}

// Mill is a flour supplier and the pickup point for loads.
type Mill struct {
	bun.BaseModel `bun:"table:mills"`

	ID            int64  `bun:",pk,autoincrement"`
	Name          string `bun:"name,notnull"`
	PickupAddress string `bun:"pickup_address,nullzero"`
	Phone         string `bun:"phone,nullzero"`
	Email         string `bun:"email,nullzero"`
	Notes         string `bun:"notes,nullzero"`
}

// Commission types for products.
const (
	CommissionPercentage = "percentage"
	CommissionFixed      = "fixed"
)

// Product is a flour sold by one mill. The commission value is either a
// percentage of the line total or a fixed amount per weight unit.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID              int64           `bun:",pk,autoincrement"`
	Name            string          `bun:"name,notnull"`
	MillID          int64           `bun:"mill_id,notnull"`
	Category        string          `bun:"category,nullzero"`
	CommissionType  string          `bun:"commission_type,notnull,default:'percentage'"`
	CommissionValue decimal.Decimal `bun:"commission_value,notnull"`
	Notes           string          `bun:"notes,nullzero"`
}

// Carrier hauls loads from mill to clients.
type Carrier struct {
	bun.BaseModel `bun:"table:carriers"`

	ID    int64  `bun:",pk,autoincrement"`
	Name  string `bun:"name,notnull"`
	Phone string `bun:"phone,nullzero"`
	Notes string `bun:"notes,nullzero"`
}

// PriceEntry records every unit price applied per client and product, so
// order entry can suggest the last agreed price.
type PriceEntry struct {
	bun.BaseModel `bun:"table:price_history"`

	ID        int64           `bun:",pk,autoincrement"`
	ClientID  int64           `bun:"client_id,notnull"`
	ProductID int64           `bun:"product_id,notnull"`
	UnitPrice decimal.Decimal `bun:"unit_price,notnull"`
	CreatedAt time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}

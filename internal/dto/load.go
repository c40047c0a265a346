package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/macina-app/macina/internal/entity"
)

// LoadResponse represents a load as exposed via transport.
type LoadResponse struct {
	ID                int64           `json:"id"`
	MillID            int64           `json:"mill_id"`
	Type              string          `json:"type"`
	CarrierID         *int64          `json:"carrier_id,omitempty"`
	PickupDate        *time.Time      `json:"pickup_date,omitempty"`
	State             string          `json:"state"`
	TotalWeight       decimal.Decimal `json:"total_weight"`
	RemainingCapacity decimal.Decimal `json:"remaining_capacity"`
	FillPercent       decimal.Decimal `json:"fill_percent"`
	Complete          bool            `json:"complete"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	Orders            []OrderResponse `json:"orders,omitempty"`
}

// FromLoad maps a load entity onto its transport shape, optionally carrying
// the member orders.
func FromLoad(load *entity.Load, orders []*entity.Order) LoadResponse {
	resp := LoadResponse{
		ID:                load.ID,
		MillID:            load.MillID,
		Type:              load.Type,
		CarrierID:         load.CarrierID,
		PickupDate:        load.PickupDate,
		State:             load.State,
		TotalWeight:       load.TotalWeight,
		RemainingCapacity: load.RemainingCapacity(),
		FillPercent:       load.FillPercent(),
		Complete:          load.Complete(),
		Notes:             load.Notes,
		CreatedAt:         load.CreatedAt,
	}
	if len(orders) > 0 {
		resp.Orders = FromOrders(orders)
	}
	return resp
}

// FromLoads maps a slice of load entities without their orders.
func FromLoads(loads []*entity.Load) []LoadResponse {
	out := make([]LoadResponse, 0, len(loads))
	for _, load := range loads {
		out = append(out, FromLoad(load, nil))
	}
	return out
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/macina-app/macina/internal/entity"
)

// OrderLineResponse represents one order line as exposed via transport.
type OrderLineResponse struct {
	ID        int64            `json:"id"`
	ProductID int64            `json:"product_id"`
	MillID    int64            `json:"mill_id"`
	Pallets   *decimal.Decimal `json:"pallets,omitempty"`
	Weight    decimal.Decimal  `json:"weight"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	LineTotal decimal.Decimal  `json:"line_total"`
}

// OrderResponse represents an order as exposed via transport, including the
// aggregates the composition screens work with.
type OrderResponse struct {
	ID              int64               `json:"id"`
	ClientID        int64               `json:"client_id"`
	OrderDate       time.Time           `json:"order_date"`
	PickupDate      *time.Time          `json:"pickup_date,omitempty"`
	CollectionDate  *time.Time          `json:"collection_date,omitempty"`
	Type            string              `json:"type"`
	Status          string              `json:"status"`
	LogisticsStatus string              `json:"logistics_status"`
	LoadID          *int64              `json:"load_id,omitempty"`
	TotalWeight     decimal.Decimal     `json:"total_weight"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	EmailSentAt     *time.Time          `json:"email_sent_at,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Lines           []OrderLineResponse `json:"lines"`
}

// FromOrder maps an order entity onto its transport shape.
func FromOrder(order *entity.Order) OrderResponse {
	resp := OrderResponse{
		ID:              order.ID,
		ClientID:        order.ClientID,
		OrderDate:       order.OrderDate,
		PickupDate:      order.PickupDate,
		CollectionDate:  order.CollectionDate,
		Type:            order.Type,
		Status:          order.Status,
		LogisticsStatus: order.LogisticsStatus,
		LoadID:          order.LoadID,
		TotalWeight:     order.TotalWeight(),
		TotalAmount:     order.TotalAmount(),
		EmailSentAt:     order.EmailSentAt,
		Notes:           order.Notes,
		CreatedAt:       order.CreatedAt,
		Lines:           make([]OrderLineResponse, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, OrderLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			MillID:    line.MillID,
			Pallets:   line.Pallets,
			Weight:    line.Weight,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return resp
}

// FromOrders maps a slice of order entities.
func FromOrders(orders []*entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, FromOrder(order))
	}
	return out
}

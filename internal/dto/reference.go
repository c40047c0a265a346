package dto

import (
	"github.com/shopspring/decimal"

	"github.com/macina-app/macina/internal/entity"
)

// ClientResponse represents a client as exposed via transport.
type ClientResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	VATNumber       string `json:"vat_number,omitempty"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Mobile          string `json:"mobile,omitempty"`
	Email           string `json:"email,omitempty"`
	ContactPerson   string `json:"contact_person,omitempty"`
	StandardPallet  string `json:"standard_pallet,omitempty"`
	DeferredPayment bool   `json:"deferred_payment"`
	Notes           string `json:"notes,omitempty"`
}

// FromClient maps a client entity.
func FromClient(client *entity.Client) ClientResponse {
	return ClientResponse{
		ID:              client.ID,
		Name:            client.Name,
		VATNumber:       client.VATNumber,
		DeliveryAddress: client.DeliveryAddress,
		Phone:           client.Phone,
		Mobile:          client.Mobile,
		Email:           client.Email,
		ContactPerson:   client.ContactPerson,
		StandardPallet:  client.StandardPallet,
		DeferredPayment: client.DeferredPayment,
		Notes:           client.Notes,
	}
}

// MillResponse represents a mill as exposed via transport.
type MillResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	PickupAddress string `json:"pickup_address,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// FromMill maps a mill entity.
func FromMill(mill *entity.Mill) MillResponse {
	return MillResponse{
		ID:            mill.ID,
		Name:          mill.Name,
		PickupAddress: mill.PickupAddress,
		Phone:         mill.Phone,
		Email:         mill.Email,
		Notes:         mill.Notes,
	}
}

// ProductResponse represents a product as exposed via transport.
type ProductResponse struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	MillID          int64           `json:"mill_id"`
	Category        string          `json:"category,omitempty"`
	CommissionType  string          `json:"commission_type"`
	CommissionValue decimal.Decimal `json:"commission_value"`
	Notes           string          `json:"notes,omitempty"`
}

// FromProduct maps a product entity.
func FromProduct(product *entity.Product) ProductResponse {
	return ProductResponse{
		ID:              product.ID,
		Name:            product.Name,
		MillID:          product.MillID,
		Category:        product.Category,
		CommissionType:  product.CommissionType,
		CommissionValue: product.CommissionValue,
		Notes:           product.Notes,
	}
}

// CarrierResponse represents a carrier as exposed via transport.
type CarrierResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// FromCarrier maps a carrier entity.
func FromCarrier(carrier *entity.Carrier) CarrierResponse {
	return CarrierResponse{
		ID:    carrier.ID,
		Name:  carrier.Name,
		Phone: carrier.Phone,
		Notes: carrier.Notes,
	}
}

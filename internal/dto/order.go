package dto

import (
	"time"

	"github.com/millflow/millflow/internal/entity"
)

// OrderItemResponse represents one order line as exposed via transport.
type OrderItemResponse struct {
	ID          int64            `json:"id"`
	Position    int              `json:"position"`
	QualityID   *int64           `json:"qualityId,omitempty"`
	Quality     *QualityResponse `json:"quality,omitempty"`
	Quantity    float64          `json:"quantity"`
	Description string           `json:"description,omitempty"`
	ImageURLs   []string         `json:"imageUrls,omitempty"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID           int64                `json:"id"`
	OrderID      int64                `json:"orderId"`
	Type         string               `json:"type"`
	ArrivalDate  time.Time            `json:"arrivalDate"`
	DeliveryDate time.Time            `json:"deliveryDate"`
	PONumber     string               `json:"poNumber,omitempty"`
	StyleNo      string               `json:"styleNo,omitempty"`
	Status       string               `json:"status"`
	PartyID      int64                `json:"partyId"`
	Party        *PartyResponse       `json:"party,omitempty"`
	Items        []*OrderItemResponse `json:"items"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// FromOrder maps an order entity onto its response shape.
func FromOrder(o *entity.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	items := make([]*OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, &OrderItemResponse{
			ID:          item.ID,
			Position:    item.Position,
			QualityID:   item.QualityID,
			Quality:     FromQuality(item.Quality),
			Quantity:    item.Quantity,
			Description: item.Description,
			ImageURLs:   item.ImageURLs,
		})
	}
	return &OrderResponse{
		ID:           o.ID,
		OrderID:      o.OrderID,
		Type:         o.Type,
		ArrivalDate:  o.ArrivalDate,
		DeliveryDate: o.DeliveryDate,
		PONumber:     o.PONumber,
		StyleNo:      o.StyleNo,
		Status:       o.Status,
		PartyID:      o.PartyID,
		Party:        FromParty(o.Party),
		Items:        items,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

// FromOrders maps a slice of orders.
func FromOrders(orders []*entity.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, FromOrder(o))
	}
	return out
}

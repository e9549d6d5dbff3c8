package orders

import (
	"time"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/internal/contacts"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// OrderDTO is the API shape of a basket or placed order. Totals are
// computed on read.
type OrderDTO struct {
	ID           int64                `json:"id"`
	State        enums.OrderState     `json:"state"`
	CreatedAt    time.Time            `json:"dt"`
	Contact      *contacts.ContactDTO `json:"contact,omitempty"`
	OrderedItems []OrderItemDTO       `json:"ordered_items"`
	Total        int64                `json:"total_sum"`
}

type OrderItemDTO struct {
	ID          int64               `json:"id"`
	ProductInfo *catalog.ListingDTO `json:"product_info,omitempty"`
	Quantity    int                 `json:"quantity"`
	Total       int64               `json:"total_amount"`
}

// PlaceRequest is the body of POST /order.
type PlaceRequest struct {
	ID      int64 `json:"id" validate:"required,gt=0"`
	Contact int64 `json:"contact" validate:"required,gt=0"`
}

// StateRequest is the staff body for an order state change.
type StateRequest struct {
	State string `json:"state" validate:"required"`
}

// FromModel converts an order with preloaded items, pricing every line
// through resolver.
func FromModel(o models.Order, resolver catalog.PriceResolver) OrderDTO {
	dto := OrderDTO{
		ID:           o.ID,
		State:        o.State,
		CreatedAt:    o.CreatedAt,
		OrderedItems: make([]OrderItemDTO, 0, len(o.Items)),
	}
	if o.Contact != nil {
		contact := contacts.FromModel(*o.Contact)
		dto.Contact = &contact
	}
	for _, item := range o.Items {
		line := OrderItemDTO{
			ID:       item.ID,
			Quantity: item.Quantity,
			Total:    catalog.LineTotal(resolver, item),
		}
		if item.ProductInfo != nil {
			listing := catalog.ListingFromModel(*item.ProductInfo)
			line.ProductInfo = &listing
		}
		dto.Total += line.Total
		dto.OrderedItems = append(dto.OrderedItems, line)
	}
	return dto
}

// Total sums the order lines with resolver.
func Total(o models.Order, resolver catalog.PriceResolver) int64 {
	var total int64
	for _, item := range o.Items {
		total += catalog.LineTotal(resolver, item)
	}
	return total
}

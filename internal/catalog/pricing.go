package catalog

import "github.com/angelmondragon/procurement-backend/pkg/db/models"

// PriceResolver decides the unit price charged for an order line.
type PriceResolver interface {
	UnitPrice(item models.OrderItem) int64
}

// CurrentPrice charges the listing's live price. Lines must have their
// ProductInfo preloaded; a missing listing prices at zero.
type CurrentPrice struct{}

func (CurrentPrice) UnitPrice(item models.OrderItem) int64 {
	if item.ProductInfo == nil {
		return 0
	}
	return item.ProductInfo.Price
}

// LineTotal is quantity times the resolved unit price.
func LineTotal(resolver PriceResolver, item models.OrderItem) int64 {
	return int64(item.Quantity) * resolver.UnitPrice(item)
}

package models

import (
	"time"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// Order is either the user's single open basket or a placed order.
// The partial unique index keeps one basket per user.
type Order struct {
	ID        int64            `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64            `gorm:"column:user_id;not null;index;uniqueIndex:ux_orders_user_basket,where:state = 'basket'"`
	State     enums.OrderState `gorm:"column:state;type:varchar(15);not null"`
	ContactID *int64           `gorm:"column:contact_id"`
	Contact   *Contact         `gorm:"foreignKey:ContactID"`
	Items     []OrderItem      `gorm:"foreignKey:OrderID"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is one listing line on an order.
type OrderItem struct {
	ID            int64        `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID       int64        `gorm:"column:order_id;not null;uniqueIndex:ux_order_items_line,priority:1"`
	ProductInfoID int64        `gorm:"column:product_info_id;not null;index;uniqueIndex:ux_order_items_line,priority:2"`
	ProductInfo   *ProductInfo `gorm:"foreignKey:ProductInfoID"`
	Quantity      int          `gorm:"column:quantity;not null"`
}

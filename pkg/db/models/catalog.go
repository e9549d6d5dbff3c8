package models

import "time"

// Shop is a partner storefront. A user owns at most one shop.
type Shop struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:varchar(50);not null"`
	URL       *string   `gorm:"column:url"`
	UserID    *int64    `gorm:"column:user_id;uniqueIndex:ux_shops_user"`
	State     bool      `gorm:"column:state;not null;default:true"`
	Filename  *string   `gorm:"column:filename"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Category ids come from the feeds and stay stable across imports.
type Category struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	Name string `gorm:"column:name;type:varchar(40);not null"`
}

// ShopCategory is the join row between shops and categories.
type ShopCategory struct {
	ShopID     int64 `gorm:"column:shop_id;primaryKey;autoIncrement:false"`
	CategoryID int64 `gorm:"column:category_id;primaryKey;autoIncrement:false"`
}

func (ShopCategory) TableName() string { return "shop_categories" }

// Product is shared across shops and keyed by (name, category).
type Product struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string    `gorm:"column:name;type:varchar(80);not null;uniqueIndex:ux_products_name_category,priority:1"`
	CategoryID int64     `gorm:"column:category_id;not null;uniqueIndex:ux_products_name_category,priority:2"`
	Category   *Category `gorm:"foreignKey:CategoryID"`
}

// ProductInfo is one shop's listing of a product.
type ProductInfo struct {
	ID                int64              `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalID        int64              `gorm:"column:external_id;not null;uniqueIndex:ux_product_infos_listing,priority:3"`
	Model             string             `gorm:"column:model;type:varchar(80);not null;default:''"`
	ProductID         int64              `gorm:"column:product_id;not null;uniqueIndex:ux_product_infos_listing,priority:1"`
	Product           *Product           `gorm:"foreignKey:ProductID"`
	ShopID            int64              `gorm:"column:shop_id;not null;index;uniqueIndex:ux_product_infos_listing,priority:2"`
	Shop              *Shop              `gorm:"foreignKey:ShopID"`
	Quantity          int                `gorm:"column:quantity;not null;default:0"`
	Price             int64              `gorm:"column:price;not null"`
	PriceRRC          int64              `gorm:"column:price_rrc;not null"`
	ProductParameters []ProductParameter `gorm:"foreignKey:ProductInfoID"`
}

// Parameter is a named attribute shared by every listing.
type Parameter struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;type:varchar(40);not null;uniqueIndex:ux_parameters_name"`
}

// ProductParameter is the value of a parameter on one listing.
type ProductParameter struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	ProductInfoID int64      `gorm:"column:product_info_id;not null;uniqueIndex:ux_product_parameters_pair,priority:1"`
	ParameterID   int64      `gorm:"column:parameter_id;not null;uniqueIndex:ux_product_parameters_pair,priority:2"`
	Parameter     *Parameter `gorm:"foreignKey:ParameterID"`
	Value         string     `gorm:"column:value;type:varchar(100);not null"`
}

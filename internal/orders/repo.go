package orders

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// Repository persists orders and their lines.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Contact").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.id ASC") }).
		Preload("Items.ProductInfo.Product.Category").
		Preload("Items.ProductInfo.Shop").
		Preload("Items.ProductInfo.ProductParameters", func(db *gorm.DB) *gorm.DB {
			return db.Order("product_parameters.id ASC")
		}).
		Preload("Items.ProductInfo.ProductParameters.Parameter")
}

// FindBasket returns the user's basket with lines preloaded, nil when the
// user has none.
func (r *Repository) FindBasket(ctx context.Context, userID int64) (*models.Order, error) {
	var order models.Order
	err := withDetails(r.db.WithContext(ctx)).
		Where("user_id = ? AND state = ?", userID, enums.OrderStateBasket).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockBasket row-locks the user's basket. It returns gorm.ErrRecordNotFound
// when there is none.
func (r *Repository) LockBasket(ctx context.Context, userID int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND state = ?", userID, enums.OrderStateBasket).
		Take(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// EnsureBasket creates the basket when missing and returns it locked. The
// insert is a no-op when another request won the race.
func (r *Repository) EnsureBasket(ctx context.Context, userID int64) (*models.Order, error) {
	basket := models.Order{UserID: userID, State: enums.OrderStateBasket}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&basket).Error; err != nil {
		return nil, err
	}
	return r.LockBasket(ctx, userID)
}

// OrderableListings returns which of ids exist and belong to a shop that
// accepts orders.
func (r *Repository) OrderableListings(ctx context.Context, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var rows []int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductInfo{}).
		Joins("JOIN shops ON shops.id = product_infos.shop_id").
		Where("product_infos.id IN ? AND shops.state = ?", ids, true).
		Pluck("product_infos.id", &rows).Error
	if err != nil {
		return nil, err
	}
	for _, id := range rows {
		found[id] = true
	}
	return found, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// UpdateItemQuantity changes one line of the given order.
func (r *Repository) UpdateItemQuantity(ctx context.Context, orderID, itemID int64, quantity int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND order_id = ?", itemID, orderID).
		Update("quantity", quantity)
	return res.RowsAffected, res.Error
}

// DeleteItems removes lines of the given order.
func (r *Repository) DeleteItems(ctx context.Context, orderID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("order_id = ? AND id IN ?", orderID, ids).
		Delete(&models.OrderItem{})
	return res.RowsAffected, res.Error
}

func (r *Repository) CountItems(ctx context.Context, orderID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OrderItem{}).Where("order_id = ?", orderID).Count(&count).Error
	return count, err
}

// PlaceBasket promotes the user's basket to a new order. Only a caller that
// sees one affected row owns the placement.
func (r *Repository) PlaceBasket(ctx context.Context, userID, orderID, contactID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND user_id = ? AND state = ?", orderID, userID, enums.OrderStateBasket).
		Updates(map[string]any{
			"contact_id": contactID,
			"state":      enums.OrderStateNew,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// FindDetailed loads one order with contact and lines.
func (r *Repository) FindDetailed(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := withDetails(r.db.WithContext(ctx)).Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListPlaced returns the user's non-basket orders, newest first.
func (r *Repository) ListPlaced(ctx context.Context, userID int64) ([]models.Order, error) {
	var out []models.Order
	err := withDetails(r.db.WithContext(ctx)).
		Where("user_id = ? AND state <> ?", userID, enums.OrderStateBasket).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

// ListForShop returns placed orders that contain the shop's listings with
// only those lines loaded.
func (r *Repository) ListForShop(ctx context.Context, shopID int64) ([]models.Order, error) {
	shopListings := r.db.Model(&models.ProductInfo{}).Select("id").Where("shop_id = ?", shopID)
	var out []models.Order
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Where("order_items.product_info_id IN (?)", shopListings).Order("order_items.id ASC")
		}).
		Preload("Items.ProductInfo.Product.Category").
		Preload("Items.ProductInfo.Shop").
		Preload("Items.ProductInfo.ProductParameters.Parameter").
		Where("state <> ?", enums.OrderStateBasket).
		Where("EXISTS (SELECT 1 FROM order_items WHERE order_items.order_id = orders.id AND order_items.product_info_id IN (?))", shopListings).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

// TransitionState moves the order from one state to another; zero rows
// means the order changed underneath the caller.
func (r *Repository) TransitionState(ctx context.Context, id int64, from, to enums.OrderState) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND state = ?", id, from).
		Updates(map[string]any{"state": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

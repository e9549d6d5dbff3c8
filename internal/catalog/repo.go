package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// Repository owns the catalog tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repo bound to the provided GORM DB.
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

func (r *Repository) FindShopByUser(ctx context.Context, userID int64) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *Repository) CreateShop(ctx context.Context, shop *models.Shop) error {
	return r.db.WithContext(ctx).Create(shop).Error
}

// RenameShop refreshes the display name and optional url of an existing shop.
func (r *Repository) RenameShop(ctx context.Context, shopID int64, name string, url *string) error {
	fields := map[string]any{"name": name}
	if url != nil {
		fields["url"] = *url
	}
	return r.db.WithContext(ctx).
		Model(&models.Shop{}).
		Where("id = ?", shopID).
		Updates(fields).Error
}

// SetShopState toggles whether the shop accepts orders.
func (r *Repository) SetShopState(ctx context.Context, shopID int64, state bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Shop{}).
		Where("id = ?", shopID).
		UpdateColumn("state", state).Error
}

// UpsertCategory gets or creates the category by its feed id. An existing
// name is never overwritten.
func (r *Repository) UpsertCategory(ctx context.Context, id int64, name string) (*models.Category, bool, error) {
	if id <= 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "category id must be positive")
	}
	row := models.Category{ID: id, Name: name}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, false, err
	}
	return &category, res.RowsAffected > 0, nil
}

// AttachShop adds the shop to the category's shop set.
func (r *Repository) AttachShop(ctx context.Context, categoryID, shopID int64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ShopCategory{ShopID: shopID, CategoryID: categoryID}).Error
}

func (r *Repository) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// UpsertProduct gets or creates the shared product keyed by (name, category).
func (r *Repository) UpsertProduct(ctx context.Context, name string, categoryID int64) (*models.Product, bool, error) {
	row := models.Product{Name: name, CategoryID: categoryID}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, translate(res.Error)
	}
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("name = ? AND category_id = ?", name, categoryID).
		First(&product).Error
	if err != nil {
		return nil, false, err
	}
	return &product, res.RowsAffected > 0, nil
}

// UpsertParameter gets or creates a parameter by name.
func (r *Repository) UpsertParameter(ctx context.Context, name string) (*models.Parameter, bool, error) {
	row := models.Parameter{Name: name}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	var param models.Parameter
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&param).Error; err != nil {
		return nil, false, err
	}
	return &param, res.RowsAffected > 0, nil
}

// ShopProductIDs snapshots the products referenced by the shop's listings.
func (r *Repository) ShopProductIDs(ctx context.Context, shopID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductInfo{}).
		Where("shop_id = ?", shopID).
		Distinct().
		Pluck("product_id", &ids).Error
	return ids, err
}

// DeleteShopListings removes every listing of the shop together with the
// parameter values and order lines that point at them.
func (r *Repository) DeleteShopListings(ctx context.Context, shopID int64) (int64, error) {
	listings := r.db.Model(&models.ProductInfo{}).Select("id").Where("shop_id = ?", shopID)

	if err := r.db.WithContext(ctx).
		Where("product_info_id IN (?)", listings).
		Delete(&models.OrderItem{}).Error; err != nil {
		return 0, fmt.Errorf("delete order items: %w", err)
	}
	if err := r.db.WithContext(ctx).
		Where("product_info_id IN (?)", listings).
		Delete(&models.ProductParameter{}).Error; err != nil {
		return 0, fmt.Errorf("delete product parameters: %w", err)
	}
	res := r.db.WithContext(ctx).Where("shop_id = ?", shopID).Delete(&models.ProductInfo{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete listings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PruneOrphanProducts deletes the given products that no shop lists anymore.
func (r *Repository) PruneOrphanProducts(ctx context.Context, productIDs []int64) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("id IN ?", productIDs).
		Where("NOT EXISTS (SELECT 1 FROM product_infos WHERE product_infos.product_id = products.id)").
		Delete(&models.Product{})
	return res.RowsAffected, res.Error
}

// ReplaceShopListings swaps the shop's listings for the given set. It must
// run inside a transaction; every listing is written under its own savepoint
// so a bad row is skipped without aborting the batch. Skipped rows are
// reported through ReplaceResult.ItemErrors.
func (r *Repository) ReplaceShopListings(ctx context.Context, shopID int64, listings []ListingInput) (ReplaceResult, error) {
	var result ReplaceResult

	productIDs, err := r.ShopProductIDs(ctx, shopID)
	if err != nil {
		return result, fmt.Errorf("snapshot products: %w", err)
	}
	if result.ListingsDeleted, err = r.DeleteShopListings(ctx, shopID); err != nil {
		return result, err
	}
	if result.OrphansPruned, err = r.PruneOrphanProducts(ctx, productIDs); err != nil {
		return result, fmt.Errorf("prune products: %w", err)
	}

	for _, item := range listings {
		var counts ReplaceResult
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return r.WithTx(tx).createListing(ctx, shopID, item, &counts)
		})
		if err != nil {
			result.ItemsSkipped++
			result.ItemErrors = multierr.Append(result.ItemErrors, fmt.Errorf("good %d: %w", item.ExternalID, err))
			continue
		}
		result.ProductsCreated += counts.ProductsCreated
		result.ListingsCreated += counts.ListingsCreated
		result.ParametersCreated += counts.ParametersCreated
	}
	return result, nil
}

func (r *Repository) createListing(ctx context.Context, shopID int64, item ListingInput, counts *ReplaceResult) error {
	if err := item.validate(); err != nil {
		return err
	}
	exists, err := r.CategoryExists(ctx, item.CategoryID)
	if err != nil {
		return err
	}
	if !exists {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "unknown category %d", item.CategoryID)
	}

	product, created, err := r.UpsertProduct(ctx, strings.TrimSpace(item.Name), item.CategoryID)
	if err != nil {
		return err
	}
	if created {
		counts.ProductsCreated++
	}

	listing := models.ProductInfo{
		ExternalID: item.ExternalID,
		Model:      item.Model,
		ProductID:  product.ID,
		ShopID:     shopID,
		Quantity:   item.Quantity,
		Price:      item.Price,
		PriceRRC:   item.PriceRRC,
	}
	if err := r.db.WithContext(ctx).Create(&listing).Error; err != nil {
		return translate(err)
	}
	counts.ListingsCreated++

	for name, value := range item.Parameters {
		name = strings.TrimSpace(name)
		if name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "parameter name is empty")
		}
		param, created, err := r.UpsertParameter(ctx, name)
		if err != nil {
			return err
		}
		if created {
			counts.ParametersCreated++
		}
		if err := r.db.WithContext(ctx).Create(&models.ProductParameter{
			ProductInfoID: listing.ID,
			ParameterID:   param.ID,
			Value:         value,
		}).Error; err != nil {
			return translate(err)
		}
	}
	return nil
}

func (i ListingInput) validate() error {
	details := map[string]string{}
	if strings.TrimSpace(i.Name) == "" {
		details["name"] = "required"
	}
	if i.CategoryID <= 0 {
		details["category"] = "must be positive"
	}
	if i.Price < 0 {
		details["price"] = "must not be negative"
	}
	if i.PriceRRC < 0 {
		details["price_rrc"] = "must not be negative"
	}
	if i.Quantity < 0 {
		details["quantity"] = "must not be negative"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid good").WithDetails(details)
	}
	return nil
}

// ActiveListings returns listings of shops that accept orders, narrowed by
// filter, with product, category, shop and parameters preloaded.
func (r *Repository) ActiveListings(ctx context.Context, filter ListingFilter) ([]models.ProductInfo, error) {
	q := r.db.WithContext(ctx).
		Model(&models.ProductInfo{}).
		Joins("JOIN shops ON shops.id = product_infos.shop_id").
		Joins("JOIN products ON products.id = product_infos.product_id").
		Where("shops.state = ?", true)
	if filter.ShopID != nil {
		q = q.Where("product_infos.shop_id = ?", *filter.ShopID)
	}
	if filter.CategoryID != nil {
		q = q.Where("products.category_id = ?", *filter.CategoryID)
	}

	var rows []models.ProductInfo
	err := q.
		Preload("Product.Category").
		Preload("Shop").
		Preload("ProductParameters", func(db *gorm.DB) *gorm.DB { return db.Order("product_parameters.id ASC") }).
		Preload("ProductParameters.Parameter").
		Order("product_infos.id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) FindListing(ctx context.Context, id int64) (*models.ProductInfo, error) {
	var listing models.ProductInfo
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&rows).Error
	return rows, err
}

// ListActiveShops lists shops whose state is on.
func (r *Repository) ListActiveShops(ctx context.Context) ([]models.Shop, error) {
	var rows []models.Shop
	err := r.db.WithContext(ctx).Where("state = ?", true).Order("name ASC, id ASC").Find(&rows).Error
	return rows, err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeDuplicateListing, err, "listing already exists")
	case db.IsForeignKeyViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "referenced row not found")
	default:
		return err
	}
}

package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
)

func seedShop(t *testing.T, conn *gorm.DB, name string) *models.Shop {
	t.Helper()
	user := models.User{Email: name + "@example.com", PasswordHash: "x", Type: "shop"}
	require.NoError(t, conn.Create(&user).Error)
	shop := models.Shop{Name: name, UserID: &user.ID, State: true}
	require.NoError(t, conn.Create(&shop).Error)
	return &shop
}

func replace(t *testing.T, conn *gorm.DB, shopID int64, listings []ListingInput) ReplaceResult {
	t.Helper()
	var result ReplaceResult
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = NewRepository(tx).ReplaceShopListings(context.Background(), shopID, listings)
		return err
	})
	require.NoError(t, err)
	return result
}

func TestUpsertCategoryKeepsFirstName(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	cat, created, err := repo.UpsertCategory(ctx, 224, "Smartphones")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "Smartphones", cat.Name)

	cat, created, err = repo.UpsertCategory(ctx, 224, "Phones")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "Smartphones", cat.Name)
}

func TestReplaceShopListingsSkipsBadItems(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	shop := seedShop(t, conn, "acme")
	_, _, err := repo.UpsertCategory(ctx, 1, "Tools")
	require.NoError(t, err)

	result := replace(t, conn, shop.ID, []ListingInput{
		{ExternalID: 10, CategoryID: 1, Name: "Hammer", Price: 500, PriceRRC: 600, Quantity: 3,
			Parameters: map[string]string{"Weight": "1kg"}},
		{ExternalID: 11, CategoryID: 99, Name: "Ghost", Price: 1, PriceRRC: 1, Quantity: 1},
		{ExternalID: 12, CategoryID: 1, Name: "", Price: 1, PriceRRC: 1, Quantity: 1},
		{ExternalID: 10, CategoryID: 1, Name: "Hammer", Price: 1, PriceRRC: 1, Quantity: 1},
	})
	require.Equal(t, 1, result.ListingsCreated)
	require.Equal(t, 1, result.ProductsCreated)
	require.Equal(t, 1, result.ParametersCreated)
	require.Equal(t, 3, result.ItemsSkipped)
	require.Error(t, result.ItemErrors)

	listings, err := repo.ActiveListings(ctx, ListingFilter{})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "Hammer", listings[0].Product.Name)
	require.Equal(t, "Tools", listings[0].Product.Category.Name)
	require.Len(t, listings[0].ProductParameters, 1)
	require.Equal(t, "Weight", listings[0].ProductParameters[0].Parameter.Name)
}

func TestReplaceShopListingsRemovesStaleAndKeepsSharedProducts(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	acme := seedShop(t, conn, "acme")
	other := seedShop(t, conn, "other")
	_, _, err := repo.UpsertCategory(ctx, 1, "Tools")
	require.NoError(t, err)

	replace(t, conn, acme.ID, []ListingInput{
		{ExternalID: 1, CategoryID: 1, Name: "Hammer", Price: 100, PriceRRC: 120, Quantity: 1},
		{ExternalID: 2, CategoryID: 1, Name: "Saw", Price: 200, PriceRRC: 220, Quantity: 1},
	})
	replace(t, conn, other.ID, []ListingInput{
		{ExternalID: 7, CategoryID: 1, Name: "Hammer", Price: 90, PriceRRC: 120, Quantity: 5},
	})

	result := replace(t, conn, acme.ID, []ListingInput{
		{ExternalID: 3, CategoryID: 1, Name: "Drill", Price: 300, PriceRRC: 330, Quantity: 2},
	})
	require.Equal(t, int64(2), result.ListingsDeleted)
	require.Equal(t, int64(1), result.OrphansPruned)

	var names []string
	require.NoError(t, conn.Model(&models.Product{}).Order("name").Pluck("name", &names).Error)
	require.Equal(t, []string{"Drill", "Hammer"}, names)

	shopID := acme.ID
	listings, err := repo.ActiveListings(ctx, ListingFilter{ShopID: &shopID})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, int64(3), listings[0].ExternalID)
}

func TestActiveListingsHidesDisabledShops(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	open := seedShop(t, conn, "open")
	closed := seedShop(t, conn, "closed")
	_, _, err := repo.UpsertCategory(ctx, 1, "Tools")
	require.NoError(t, err)
	_, _, err = repo.UpsertCategory(ctx, 2, "Paint")
	require.NoError(t, err)

	replace(t, conn, open.ID, []ListingInput{
		{ExternalID: 1, CategoryID: 1, Name: "Hammer", Price: 1, PriceRRC: 1, Quantity: 1},
		{ExternalID: 2, CategoryID: 2, Name: "Red", Price: 1, PriceRRC: 1, Quantity: 1},
	})
	replace(t, conn, closed.ID, []ListingInput{
		{ExternalID: 1, CategoryID: 1, Name: "Hammer", Price: 1, PriceRRC: 1, Quantity: 1},
	})
	require.NoError(t, repo.SetShopState(ctx, closed.ID, false))

	all, err := repo.ActiveListings(ctx, ListingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	category := int64(1)
	tools, err := repo.ActiveListings(ctx, ListingFilter{CategoryID: &category})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, open.ID, tools[0].ShopID)

	shops, err := repo.ListActiveShops(ctx)
	require.NoError(t, err)
	require.Len(t, shops, 1)
	require.Equal(t, "open", shops[0].Name)
}

func TestAttachShopIsAdditive(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	a := seedShop(t, conn, "a")
	b := seedShop(t, conn, "b")
	_, _, err := repo.UpsertCategory(ctx, 5, "Glue")
	require.NoError(t, err)

	require.NoError(t, repo.AttachShop(ctx, 5, a.ID))
	require.NoError(t, repo.AttachShop(ctx, 5, b.ID))
	require.NoError(t, repo.AttachShop(ctx, 5, a.ID))

	var count int64
	require.NoError(t, conn.Model(&models.ShopCategory{}).Where("category_id = ?", 5).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

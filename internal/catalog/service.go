package catalog

import (
	"context"
	"fmt"

	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// Service serves the public catalog reads.
type Service interface {
	Categories(ctx context.Context) ([]CategoryDTO, error)
	Shops(ctx context.Context) ([]ShopDTO, error)
	Listings(ctx context.Context, filter ListingFilter) ([]ListingDTO, error)
}

type catalogReader interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListActiveShops(ctx context.Context) ([]models.Shop, error)
	ActiveListings(ctx context.Context, filter ListingFilter) ([]models.ProductInfo, error)
}

type service struct {
	repo  catalogReader
	cache *Cache
}

// NewService builds the read service. cache may be nil to read straight
// from the database.
func NewService(repo catalogReader, cache *Cache) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo, cache: cache}, nil
}

func (s *service) Categories(ctx context.Context) ([]CategoryDTO, error) {
	return readThrough(ctx, s.cache, ModelCategories, "all", func() ([]CategoryDTO, error) {
		rows, err := s.repo.ListCategories(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list categories")
		}
		out := make([]CategoryDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, CategoryFromModel(row))
		}
		return out, nil
	})
}

func (s *service) Shops(ctx context.Context) ([]ShopDTO, error) {
	return readThrough(ctx, s.cache, ModelShops, "active", func() ([]ShopDTO, error) {
		rows, err := s.repo.ListActiveShops(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list shops")
		}
		out := make([]ShopDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, ShopFromModel(row))
		}
		return out, nil
	})
}

func (s *service) Listings(ctx context.Context, filter ListingFilter) ([]ListingDTO, error) {
	return readThrough(ctx, s.cache, ModelListings, filter, func() ([]ListingDTO, error) {
		rows, err := s.repo.ActiveListings(ctx, filter)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list listings")
		}
		out := make([]ListingDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, ListingFromModel(row))
		}
		return out, nil
	})
}

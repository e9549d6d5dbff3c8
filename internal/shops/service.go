package shops

import (
	"context"
	"fmt"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

type shopRepository interface {
	FindShopByUser(ctx context.Context, userID int64) (*models.Shop, error)
	SetShopState(ctx context.Context, shopID int64, state bool) error
}

// Service exposes the partner's own shop status.
type Service interface {
	State(ctx context.Context, userID int64) (*catalog.ShopDTO, error)
	SetState(ctx context.Context, userID int64, state bool) (*catalog.ShopDTO, error)
}

type service struct {
	repo  shopRepository
	cache catalog.Invalidator
	logg  *logger.Logger
}

// NewService builds the partner state service. cache may be nil.
func NewService(repo shopRepository, cache catalog.Invalidator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("shop repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, cache: cache, logg: logg}, nil
}

func (s *service) State(ctx context.Context, userID int64) (*catalog.ShopDTO, error) {
	shop, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	dto := catalog.ShopFromModel(*shop)
	return &dto, nil
}

func (s *service) SetState(ctx context.Context, userID int64, state bool) (*catalog.ShopDTO, error) {
	shop, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetShopState(ctx, shop.ID, state); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update shop state")
	}
	shop.State = state

	logCtx := s.logg.WithShopID(ctx, shop.ID)
	s.logg.Info(s.logg.WithField(logCtx, "state", state), "shop.state.updated")

	if s.cache != nil {
		if _, err := s.cache.Invalidate(ctx, catalog.ModelShops, catalog.ModelListings); err != nil {
			s.logg.Error(logCtx, "shop.state.cache_invalidate_failed", err)
		}
	}
	dto := catalog.ShopFromModel(*shop)
	return &dto, nil
}

func (s *service) load(ctx context.Context, userID int64) (*models.Shop, error) {
	shop, err := s.repo.FindShopByUser(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shop")
	}
	return shop, nil
}

package basket

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/internal/orders"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/idlist"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns the buyer's basket. Mutations for one user never overlap.
type Service interface {
	GetBasket(ctx context.Context, userID int64) (*orders.OrderDTO, error)
	AddItems(ctx context.Context, userID int64, items []AddItem) (*AddResult, error)
	UpdateItemQuantities(ctx context.Context, userID int64, items []QuantityUpdate) (*UpdateResult, error)
	RemoveItems(ctx context.Context, userID int64, rawIDs string) (*RemoveResult, error)
}

// ServiceParams bundles the basket dependencies. Prices defaults to the
// live listing price.
type ServiceParams struct {
	DB     txRunner
	Repo   *orders.Repository
	Prices catalog.PriceResolver
	Logger *logger.Logger
}

type service struct {
	db     txRunner
	repo   *orders.Repository
	prices catalog.PriceResolver
	locks  *keyedMutex
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	prices := params.Prices
	if prices == nil {
		prices = catalog.CurrentPrice{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:     params.DB,
		repo:   params.Repo,
		prices: prices,
		locks:  newKeyedMutex(),
		logg:   logg,
	}, nil
}

// GetBasket returns nil without error when the user has no basket.
func (s *service) GetBasket(ctx context.Context, userID int64) (*orders.OrderDTO, error) {
	basket, err := s.repo.FindBasket(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load basket")
	}
	if basket == nil {
		return nil, nil
	}
	dto := orders.FromModel(*basket, s.prices)
	return &dto, nil
}

// AddItems inserts every line or none of them.
func (s *service) AddItems(ctx context.Context, userID int64, items []AddItem) (*AddResult, error) {
	if err := validateAdd(items); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	result := &AddResult{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		basket, err := repo.EnsureBasket(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open basket")
		}

		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ProductInfo)
		}
		orderable, err := repo.OrderableListings(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check listings")
		}
		details := map[string]string{}
		for i, item := range items {
			if !orderable[item.ProductInfo] {
				details[fmt.Sprintf("items[%d].product_info", i)] = "unknown listing or shop not accepting orders"
			}
		}
		if len(details) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid basket items").WithDetails(details)
		}

		for _, item := range items {
			line := &models.OrderItem{OrderID: basket.ID, ProductInfoID: item.ProductInfo, Quantity: item.Quantity}
			if err := repo.CreateItem(ctx, line); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Newf(pkgerrors.CodeDuplicateListing, "listing %d is already in the basket", item.ProductInfo).
						WithDetails(map[string]string{"product_info": strconv.FormatInt(item.ProductInfo, 10)})
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add basket item")
			}
			result.Created++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithUserID(ctx, userID), "created", result.Created), "basket.items.added")
	return result, nil
}

// UpdateItemQuantities applies the well-formed entries and skips the rest.
func (s *service) UpdateItemQuantities(ctx context.Context, userID int64, items []QuantityUpdate) (*UpdateResult, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	result := &UpdateResult{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		basket, err := repo.LockBasket(ctx, userID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock basket")
		}
		for _, item := range items {
			id, ok := asInt(item.ID)
			if !ok || id <= 0 {
				continue
			}
			quantity, ok := asInt(item.Quantity)
			if !ok || quantity <= 0 || quantity > math.MaxInt32 {
				continue
			}
			affected, err := repo.UpdateItemQuantity(ctx, basket.ID, id, int(quantity))
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update basket item")
			}
			result.Updated += int(affected)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveItems deletes the listed lines; ids that are not numbers are ignored.
func (s *service) RemoveItems(ctx context.Context, userID int64, rawIDs string) (*RemoveResult, error) {
	if rawIDs == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	ids := idlist.Parse(rawIDs)

	unlock := s.locks.Lock(userID)
	defer unlock()

	result := &RemoveResult{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		basket, err := repo.LockBasket(ctx, userID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock basket")
		}
		result.Deleted, err = repo.DeleteItems(ctx, basket.ID, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove basket items")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateAdd(items []AddItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	details := map[string]string{}
	for i, item := range items {
		if item.ProductInfo <= 0 {
			details[fmt.Sprintf("items[%d].product_info", i)] = "must be a positive integer"
		}
		if item.Quantity <= 0 {
			details[fmt.Sprintf("items[%d].quantity", i)] = "must be a positive integer"
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid basket items").WithDetails(details)
	}
	return nil
}

// asInt accepts integral JSON numbers only; strings and fractions are not
// integers.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

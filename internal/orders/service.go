package orders

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/internal/contacts"
	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service places baskets and exposes buyer, partner and staff order views.
type Service interface {
	PlaceOrder(ctx context.Context, userID, orderID, contactID int64) (*OrderDTO, error)
	ListOrders(ctx context.Context, userID int64) ([]OrderDTO, error)
	ListPartnerOrders(ctx context.Context, shopUserID int64) ([]OrderDTO, error)
	UpdateState(ctx context.Context, staffID, orderID int64, state string) (*OrderDTO, error)
}

// ServiceParams bundles the order service dependencies.
type ServiceParams struct {
	DB     txRunner
	Repo   *Repository
	Shops  *catalog.Repository
	Outbox outbox.Emitter
	Prices catalog.PriceResolver
	Logger *logger.Logger
}

type service struct {
	db     txRunner
	repo   *Repository
	shops  *catalog.Repository
	outbox outbox.Emitter
	prices catalog.PriceResolver
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Shops == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
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
		shops:  params.Shops,
		outbox: params.Outbox,
		prices: prices,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// PlaceOrder promotes the caller's basket to state new and queues new_order
// in the same transaction. Losing a concurrent placement yields NotFound.
func (s *service) PlaceOrder(ctx context.Context, userID, orderID, contactID int64) (*OrderDTO, error) {
	details := map[string]string{}
	if orderID <= 0 {
		details["id"] = "required"
	}
	if contactID <= 0 {
		details["contact"] = "required"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and contact are required").WithDetails(details)
	}
	ctx = s.logg.WithOrderID(s.logg.WithUserID(ctx, userID), orderID)

	var placed *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := contacts.NewRepository(tx).FindForUser(ctx, userID, contactID); err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeValidation, "unknown contact").
					WithDetails(map[string]string{"contact": "not found"})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contact")
		}

		repo := s.repo.WithTx(tx)
		affected, err := repo.PlaceBasket(ctx, userID, orderID, contactID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "place order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "basket not found")
		}
		items, err := repo.CountItems(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count order items")
		}
		if items == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "basket is empty")
		}

		placed, err = repo.FindDetailed(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		buyer, err := users.NewRepository(tx).FindByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load buyer")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNewOrder,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatInt(orderID, 10),
			Actor:         &outbox.ActorRef{UserID: userID, Role: string(buyer.Type)},
			Data: payloads.NewOrderEvent{
				OrderID:   orderID,
				UserID:    userID,
				Email:     buyer.Email,
				ContactID: contactID,
				Total:     Total(*placed, s.prices),
				ShopIDs:   shopIDs(*placed),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	dto := FromModel(*placed, s.prices)
	s.logg.Info(s.logg.WithField(ctx, "total", dto.Total), "order.placed")
	return &dto, nil
}

func (s *service) ListOrders(ctx context.Context, userID int64) ([]OrderDTO, error) {
	rows, err := s.repo.ListPlaced(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return s.toDTOs(rows), nil
}

// ListPartnerOrders shows a partner only its own lines of each order; the
// total covers those lines.
func (s *service) ListPartnerOrders(ctx context.Context, shopUserID int64) ([]OrderDTO, error) {
	shop, err := s.shops.FindShopByUser(ctx, shopUserID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shop")
	}
	rows, err := s.repo.ListForShop(ctx, shop.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list partner orders")
	}
	return s.toDTOs(rows), nil
}

// UpdateState applies a staff transition and queues order_state_changed.
func (s *service) UpdateState(ctx context.Context, staffID, orderID int64, state string) (*OrderDTO, error) {
	target, err := enums.ParseOrderState(state)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order state").
			WithDetails(map[string]string{"state": err.Error()})
	}
	ctx = s.logg.WithOrderID(s.logg.WithUserID(ctx, staffID), orderID)

	var (
		updated *models.Order
		from    enums.OrderState
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindDetailed(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		from = order.State
		if !from.CanTransitionTo(target) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, target).
				WithDetails(map[string]string{"from": string(from), "to": string(target)})
		}
		affected, err := repo.TransitionState(ctx, orderID, from, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order state")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		order.State = target
		updated = order

		var email string
		if buyer, err := users.NewRepository(tx).FindByID(ctx, order.UserID); err == nil {
			email = buyer.Email
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStateChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatInt(orderID, 10),
			Actor:         &outbox.ActorRef{UserID: staffID, Role: "staff"},
			Data: payloads.OrderStateChangedEvent{
				OrderID:   orderID,
				UserID:    order.UserID,
				Email:     email,
				From:      from,
				To:        target,
				ChangedAt: s.now().UTC(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from": from, "to": target}), "order.state.updated")
	dto := FromModel(*updated, s.prices)
	return &dto, nil
}

func (s *service) toDTOs(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row, s.prices))
	}
	return out
}

func shopIDs(order models.Order) []int64 {
	seen := map[int64]struct{}{}
	var out []int64
	for _, item := range order.Items {
		if item.ProductInfo == nil {
			continue
		}
		if _, ok := seen[item.ProductInfo.ShopID]; ok {
			continue
		}
		seen[item.ProductInfo.ShopID] = struct{}{}
		out = append(out, item.ProductInfo.ShopID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

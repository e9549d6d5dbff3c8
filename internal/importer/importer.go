package importer

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
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

// Request is one import run for the shop owned by UserID.
type Request struct {
	UserID int64
	Feed   *Feed
	// TaskID links the completion event to the queued task, empty for
	// imports started from the command line.
	TaskID string
}

// Result summarizes a committed import.
type Result struct {
	ShopID            int64
	ShopName          string
	CategoriesCreated int
	catalog.ReplaceResult
}

// Importer replaces a shop's catalog from a parsed feed.
type Importer struct {
	db     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
}

// ImporterParams bundles the importer dependencies.
type ImporterParams struct {
	DB     txRunner
	Outbox outbox.Emitter
	Logger *logger.Logger
}

func NewImporter(params ImporterParams) (*Importer, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Importer{db: params.DB, outbox: params.Outbox, logg: logg}, nil
}

// Import runs the whole replacement in one transaction and queues
// import_completed with it. Only item level problems are tolerated; any
// other error rolls the shop back to its previous catalog. The owner row is
// locked first, so imports for one shop never interleave whoever calls them.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	if req.Feed == nil {
		return nil, pkgerrors.New(pkgerrors.CodeImportFatal, "feed is required")
	}
	ctx = im.logg.WithUserID(ctx, req.UserID)
	if req.TaskID != "" {
		ctx = im.logg.WithTaskID(ctx, req.TaskID)
	}

	var result Result
	err := im.db.WithTx(ctx, func(tx *gorm.DB) error {
		owner, err := users.NewRepository(tx).LockByID(ctx, req.UserID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.Newf(pkgerrors.CodeImportFatal, "user %d not found", req.UserID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shop owner")
		}

		repo := catalog.NewRepository(tx)
		shop, err := im.resolveShop(ctx, repo, owner.ID, req.Feed.Shop)
		if err != nil {
			return err
		}
		result.ShopID = shop.ID
		result.ShopName = shop.Name

		for _, c := range req.Feed.Categories {
			_, created, err := repo.UpsertCategory(ctx, c.ID, c.Name)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeImportFatal, err, fmt.Sprintf("resolve category %d", c.ID))
			}
			if created {
				result.CategoriesCreated++
			}
			if err := repo.AttachShop(ctx, c.ID, shop.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeImportFatal, err, fmt.Sprintf("attach category %d", c.ID))
			}
		}

		replaced, err := repo.ReplaceShopListings(ctx, shop.ID, req.Feed.Listings())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeImportFatal, err, "replace listings")
		}
		replaced.ItemsSkipped += len(req.Feed.BadGoods)
		replaced.ItemErrors = multierr.Append(req.Feed.BadGoodsError(), replaced.ItemErrors)
		result.ReplaceResult = replaced

		return im.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventImportCompleted,
			AggregateType: aggregateFor(req),
			AggregateID:   aggregateID(req, shop.ID),
			Actor:         &outbox.ActorRef{UserID: owner.ID, Role: string(owner.Type)},
			Data: payloads.ImportCompletedEvent{
				TaskID:            req.TaskID,
				UserID:            owner.ID,
				Email:             owner.Email,
				ShopID:            shop.ID,
				ShopName:          shop.Name,
				CategoriesCreated: result.CategoriesCreated,
				ProductsCreated:   replaced.ProductsCreated,
				ListingsCreated:   replaced.ListingsCreated,
				ParametersCreated: replaced.ParametersCreated,
				ItemsSkipped:      replaced.ItemsSkipped,
				OrphansPruned:     int(replaced.OrphansPruned),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := im.logg.WithFields(im.logg.WithShopID(ctx, result.ShopID), map[string]any{
		"categories_created": result.CategoriesCreated,
		"products_created":   result.ProductsCreated,
		"listings_created":   result.ListingsCreated,
		"parameters_created": result.ParametersCreated,
		"items_skipped":      result.ItemsSkipped,
		"orphans_pruned":     result.OrphansPruned,
	})
	for _, itemErr := range multierr.Errors(result.ItemErrors) {
		im.logg.Warn(im.logg.WithField(logCtx, "reason", itemErr.Error()), "import.item.skipped")
	}
	im.logg.Info(logCtx, "import.completed")
	return &result, nil
}

// resolveShop finds the owner's shop or creates it with the feed's name.
func (im *Importer) resolveShop(ctx context.Context, repo *catalog.Repository, userID int64, name string) (*models.Shop, error) {
	shop, err := repo.FindShopByUser(ctx, userID)
	switch {
	case err == nil:
		if shop.Name != name {
			if err := repo.RenameShop(ctx, shop.ID, name, nil); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeImportFatal, err, "rename shop")
			}
			shop.Name = name
		}
		return shop, nil
	case db.IsNotFound(err):
		owner := userID
		shop = &models.Shop{Name: name, UserID: &owner, State: true}
		if err := repo.CreateShop(ctx, shop); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeImportFatal, err, "create shop")
		}
		return shop, nil
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeImportFatal, err, "resolve shop")
	}
}

func aggregateFor(req Request) enums.OutboxAggregateType {
	if req.TaskID != "" {
		return enums.AggregateImportTask
	}
	return enums.AggregateShop
}

func aggregateID(req Request, shopID int64) string {
	if req.TaskID != "" {
		return req.TaskID
	}
	return strconv.FormatInt(shopID, 10)
}

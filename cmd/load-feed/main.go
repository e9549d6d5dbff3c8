package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/internal/importer"
	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/migrate"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
	"github.com/angelmondragon/procurement-backend/pkg/security"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "load-feed"})

	_ = godotenv.Load()

	email := flag.String("email", "", "shop account email; the account is created when missing")
	file := flag.String("file", "", "path to the YAML price feed")
	flag.Parse()

	if strings.TrimSpace(*email) == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "usage: load-feed -email <shop email> -file <feed.yaml>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "load-feed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	data, err := os.ReadFile(*file)
	requireResource(ctx, logg, "feed file", err)
	feed, err := importer.ParseFeed(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid feed: %v\n", err)
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	owner, err := ensureShopUser(ctx, cfg, users.NewRepository(dbClient.DB()), *email)
	requireResource(ctx, logg, "shop account", err)

	imp, err := importer.NewImporter(importer.ImporterParams{
		DB:     dbClient,
		Outbox: outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger: logg,
	})
	requireResource(ctx, logg, "importer", err)

	result, err := imp.Import(ctx, importer.Request{UserID: owner.ID, Feed: feed})
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}

	invalidateCache(ctx, cfg, logg)

	fmt.Printf("shop %q (%d): %d listings, %d products, %d parameters, %d categories created, %d skipped\n",
		result.ShopName, result.ShopID, result.ListingsCreated, result.ProductsCreated,
		result.ParametersCreated, result.CategoriesCreated, result.ItemsSkipped)
	if result.ItemErrors != nil {
		fmt.Fprintf(os.Stderr, "skipped goods: %v\n", result.ItemErrors)
	}
}

// ensureShopUser returns the shop account for email, creating an active one
// with an unusable random password when it does not exist yet.
func ensureShopUser(ctx context.Context, cfg *config.Config, repo *users.Repository, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := repo.FindByEmail(ctx, email)
	if err == nil {
		if user.Type != enums.UserTypeShop {
			return nil, fmt.Errorf("user %s is not a shop account", email)
		}
		return user, nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}

	secret, err := security.GenerateConfirmToken()
	if err != nil {
		return nil, err
	}
	hash, err := security.NewHasher(cfg.Password).Hash(secret)
	if err != nil {
		return nil, err
	}
	return repo.Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		Type:         enums.UserTypeShop,
		IsActive:     true,
	})
}

// invalidateCache drops cached catalog reads. Redis being down only costs
// stale reads until the TTLs run out, so failures are logged.
func invalidateCache(ctx context.Context, cfg *config.Config, logg *logger.Logger) {
	if !cfg.Cache.Enabled {
		return
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Warn(ctx, "load_feed.cache.unavailable")
		return
	}
	defer redisClient.Close()
	cache, err := catalog.NewCache(redisClient, cfg.Cache, logg)
	if err != nil {
		logg.Error(ctx, "load_feed.cache.failed", err)
		return
	}
	if _, err := cache.Invalidate(ctx); err != nil {
		logg.Error(ctx, "load_feed.cache.failed", err)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/procurement-backend/api/routes"
	"github.com/angelmondragon/procurement-backend/internal/auth"
	"github.com/angelmondragon/procurement-backend/internal/basket"
	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/internal/contacts"
	"github.com/angelmondragon/procurement-backend/internal/importer"
	"github.com/angelmondragon/procurement-backend/internal/orders"
	"github.com/angelmondragon/procurement-backend/internal/shops"
	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/env"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
	"github.com/angelmondragon/procurement-backend/pkg/migrate"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
	"github.com/angelmondragon/procurement-backend/pkg/security"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to build services", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	id := env.InstanceID("local")
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Infra{
			DB:          dbClient,
			Redis:       redisClient,
			HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		}, *services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
	}
	logg.Info(shutdownCtx, "api server stopped")
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*routes.Services, error) {
	gdb := dbClient.DB()
	hasher := security.NewHasher(cfg.Password)
	emitter := outbox.NewService(outbox.NewRepository(gdb), logg)
	userRepo := users.NewRepository(gdb)
	catalogRepo := catalog.NewRepository(gdb)
	orderRepo := orders.NewRepository(gdb)

	var cache *catalog.Cache
	var invalidator catalog.Invalidator
	if cfg.Cache.Enabled {
		c, err := catalog.NewCache(redisClient, cfg.Cache, logg)
		if err != nil {
			return nil, err
		}
		cache, invalidator = c, c
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  userRepo,
		Hasher:    hasher,
		JWTConfig: cfg.JWT,
	})
	if err != nil {
		return nil, err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:     dbClient,
		Hasher: hasher,
		Outbox: emitter,
	})
	if err != nil {
		return nil, err
	}
	resetService, err := auth.NewPasswordResetService(auth.PasswordResetServiceParams{
		DB:       dbClient,
		Hasher:   hasher,
		Outbox:   emitter,
		TokenTTL: cfg.Password.ResetTokenTTL,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}
	usersService, err := users.NewService(userRepo, hasher)
	if err != nil {
		return nil, err
	}
	contactsService, err := contacts.NewService(contacts.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	catalogService, err := catalog.NewService(catalogRepo, cache)
	if err != nil {
		return nil, err
	}
	shopsService, err := shops.NewService(catalogRepo, invalidator, logg)
	if err != nil {
		return nil, err
	}
	basketService, err := basket.NewService(basket.ServiceParams{
		DB:     dbClient,
		Repo:   orderRepo,
		Prices: catalog.CurrentPrice{},
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	ordersService, err := orders.NewService(orders.ServiceParams{
		DB:     dbClient,
		Repo:   orderRepo,
		Shops:  catalogRepo,
		Outbox: emitter,
		Prices: catalog.CurrentPrice{},
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	importService, err := importer.NewService(importer.NewTaskRepository(gdb), logg)
	if err != nil {
		return nil, err
	}

	return &routes.Services{
		Auth:     authService,
		Register: registerService,
		Reset:    resetService,
		Users:    usersService,
		Contacts: contactsService,
		Catalog:  catalogService,
		Basket:   basketService,
		Orders:   ordersService,
		Shops:    shopsService,
		Importer: importService,
	}, nil
}

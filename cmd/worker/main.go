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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/internal/importer"
	"github.com/angelmondragon/procurement-backend/internal/notifications"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/env"
	"github.com/angelmondragon/procurement-backend/pkg/kafka"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
	"github.com/angelmondragon/procurement-backend/pkg/migrate"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/registry"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	importWorker, err := buildImportWorker(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create import worker", err)
		os.Exit(1)
	}

	kafkaConsumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.EventsTopic, logg)
	if err != nil {
		logg.Error(ctx, "failed to create kafka consumer", err)
		os.Exit(1)
	}
	defer func() {
		if err := kafkaConsumer.Close(); err != nil {
			logg.Error(context.Background(), "error closing kafka consumer", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.Kafka)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}
	idem, err := idempotency.NewManager(redisClient, notifications.ConsumerName, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}
	notificationConsumer, err := notifications.NewConsumer(notifications.ConsumerParams{
		Source:      kafkaConsumer,
		Decoders:    registry.NewConsumerDecoders(eventRegistry),
		Idempotency: idem,
		Sender:      notifications.NewLogSender(logg),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create notification consumer", err)
		os.Exit(1)
	}

	svc, err := NewService(ServiceParams{
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		ImportWorker:         importWorker,
		NotificationConsumer: notificationConsumer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	go serveMetrics(ctx, logg, metricsAddr())

	ctx = logg.WithField(ctx, "instance", env.InstanceID("worker-0"))
	logg.Info(ctx, "starting worker")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "worker shutting down gracefully")
}

func buildImportWorker(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*importer.Worker, error) {
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	imp, err := importer.NewImporter(importer.ImporterParams{
		DB:     dbClient,
		Outbox: emitter,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	params := importer.WorkerParams{
		DB:       dbClient,
		Tasks:    importer.NewTaskRepository(dbClient.DB()),
		Fetcher:  importer.NewFetcher(cfg.Import),
		Importer: imp,
		Locks:    redisClient,
		Outbox:   emitter,
		Metrics:  metrics.NewImportMetrics(prometheus.DefaultRegisterer),
		Config:   cfg.Import,
		Logger:   logg,
	}
	if cfg.Cache.Enabled {
		cache, err := catalog.NewCache(redisClient, cfg.Cache, logg)
		if err != nil {
			return nil, err
		}
		params.Cache = cache
	}
	return importer.NewWorker(params)
}

func metricsAddr() string {
	if port := env.Get("PORT", ""); port != "" {
		return ":" + port
	}
	return ""
}

// serveMetrics exposes the prometheus registry while the worker runs. An
// empty addr disables it.
func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped", err)
	}
}

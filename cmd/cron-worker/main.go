package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/procurement-backend/internal/cron"
	"github.com/angelmondragon/procurement-backend/internal/importer"
	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
	"github.com/angelmondragon/procurement-backend/pkg/migrate"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit (for externally scheduled runs)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnErr(ctx, logg, "failed to bootstrap database", err)
	defer dbClient.Close()
	exitOnErr(ctx, logg, "failed to run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	exitOnErr(ctx, logg, "failed to bootstrap redis", err)
	defer redisClient.Close()

	registry, err := buildRegistry(cfg, logg, dbClient)
	exitOnErr(ctx, logg, "failed to register cron jobs", err)

	// one lease per environment so staging and prod replicas never contend
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName, cfg.App.Env), cfg.Cron.Interval)
	exitOnErr(ctx, logg, "failed to create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	exitOnErr(ctx, logg, "failed to create cron service", err)

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
		"once":        *once,
	})
	logg.Info(ctx, "starting cron worker")

	if *once {
		exitOnErr(ctx, logg, "cron cycle failed", service.RunOnce(ctx))
		return
	}
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	gdb := dbClient.DB()
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		Outbox:        outbox.NewRepository(gdb),
		DLQ:           outbox.NewDLQRepository(gdb),
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	tokenJob, err := cron.NewConfirmTokenCleanupJob(cron.ConfirmTokenCleanupJobParams{
		Logger:     logg,
		Repository: users.NewRepository(gdb),
		TTL:        cfg.Cron.ConfirmTokenTTL,
		ResetTTL:   cfg.Password.ResetTokenTTL,
	})
	if err != nil {
		return nil, err
	}
	reaperJob, err := cron.NewImportReaperJob(cron.ImportReaperJobParams{
		Logger:     logg,
		Repository: importer.NewTaskRepository(gdb),
		StaleAfter: cfg.Import.StaleAfter,
		History:    cfg.Cron.ImportTaskHistory,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(outboxJob, tokenJob, reaperJob)
}

// exitOnErr skips deferred closes.
func exitOnErr(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

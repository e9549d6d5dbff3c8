package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/kafka"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
	"github.com/angelmondragon/procurement-backend/pkg/migrate"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/registry"
)

func main() {
	requeue := flag.String("requeue", "", "copy the dead-lettered event with this id back into the outbox and exit")
	listDLQ := flag.Int("list-dlq", 0, "print the N most recent dead-lettered events and exit")
	dlqReason := flag.String("dlq-reason", "", "with -list-dlq, only show max_attempts or non_retryable")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	if *requeue != "" || *listDLQ > 0 {
		if err := runDLQCommand(context.Background(), dlqRepo, *requeue, *listDLQ, *dlqReason); err != nil {
			logg.Error(context.Background(), "dlq command failed", err)
			os.Exit(1)
		}
		return
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap kafka producer", err)
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logg.Error(context.Background(), "error closing kafka producer", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.Kafka)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Producer:      producer,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-publisher",
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func runDLQCommand(ctx context.Context, repo *outbox.DLQRepository, requeue string, list int, reason string) error {
	if requeue != "" {
		eventID, err := uuid.Parse(requeue)
		if err != nil {
			return fmt.Errorf("invalid event id %q: %w", requeue, err)
		}
		freshID, err := repo.Requeue(ctx, eventID)
		if err != nil {
			return fmt.Errorf("requeue %s: %w", eventID, err)
		}
		fmt.Printf("requeued %s as %s\n", eventID, freshID)
		return nil
	}
	filter := outbox.DLQFilter{Limit: list, Reason: enums.OutboxDLQErrorReason(reason)}
	if reason != "" && !filter.Reason.IsValid() {
		return fmt.Errorf("unknown dlq reason %q", reason)
	}
	rows, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Printf("%s\t%s\t%s\t%d\t%s\t%s\n", row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, row.FailedAt.Format("2006-01-02T15:04:05Z07:00"), msg)
	}
	return nil
}

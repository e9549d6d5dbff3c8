package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	Outbox        publishedEventPruner
	DLQ           deadLetterPruner
	RetentionDays int
}

type publishedEventPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes delivered and dead-lettered outbox rows past
// the retention window. Pending rows are never touched regardless of age.
// DLQ is optional.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	window := time.Duration(params.RetentionDays) * 24 * time.Hour
	if window <= 0 {
		window = defaultOutboxRetention
	}
	return &outboxRetentionJob{
		logg:   params.Logger,
		outbox: params.Outbox,
		dlq:    params.DLQ,
		window: window,
		now:    time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg   *logger.Logger
	outbox publishedEventPruner
	dlq    deadLetterPruner
	window time.Duration
	now    func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run sweeps both tables even when the first fails; errors are combined.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)

	events, err := j.outbox.DeletePublishedBefore(ctx, nil, cutoff)
	if err != nil {
		err = fmt.Errorf("outbox events: %w", err)
	}
	var letters int64
	if j.dlq != nil {
		var dlqErr error
		letters, dlqErr = j.dlq.DeleteFailedBefore(ctx, cutoff)
		if dlqErr != nil {
			err = multierr.Append(err, fmt.Errorf("outbox dlq: %w", dlqErr))
		}
	}
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"events_deleted": events,
		"dlq_deleted":    letters,
	}), "cron.outbox_retention.completed")
	return nil
}

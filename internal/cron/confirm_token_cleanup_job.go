package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

const (
	defaultConfirmTokenTTL = 72 * time.Hour
	defaultResetTokenTTL   = 24 * time.Hour
)

type ConfirmTokenCleanupJobParams struct {
	Logger     *logger.Logger
	Repository userTokenRepo
	TTL        time.Duration
	ResetTTL   time.Duration
}

type userTokenRepo interface {
	DeleteConfirmTokensBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteResetTokensBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewConfirmTokenCleanupJob purges confirmation and password reset keys
// nobody redeemed in time.
func NewConfirmTokenCleanupJob(params ConfirmTokenCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("users repository required")
	}
	job := &confirmTokenCleanupJob{
		logg:     params.Logger,
		repo:     params.Repository,
		ttl:      params.TTL,
		resetTTL: params.ResetTTL,
		now:      time.Now,
	}
	if job.ttl <= 0 {
		job.ttl = defaultConfirmTokenTTL
	}
	if job.resetTTL <= 0 {
		job.resetTTL = defaultResetTokenTTL
	}
	return job, nil
}

type confirmTokenCleanupJob struct {
	logg     *logger.Logger
	repo     userTokenRepo
	ttl      time.Duration
	resetTTL time.Duration
	now      func() time.Time
}

func (j *confirmTokenCleanupJob) Name() string { return "confirm-token-cleanup" }

func (j *confirmTokenCleanupJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	confirmed, confirmErr := j.repo.DeleteConfirmTokensBefore(ctx, now.Add(-j.ttl))
	if confirmErr != nil {
		confirmErr = fmt.Errorf("confirm token cleanup: %w", confirmErr)
	}
	reset, resetErr := j.repo.DeleteResetTokensBefore(ctx, now.Add(-j.resetTTL))
	if resetErr != nil {
		resetErr = fmt.Errorf("reset token cleanup: %w", resetErr)
	}
	if err := multierr.Append(confirmErr, resetErr); err != nil {
		return err
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"confirm_deleted": confirmed,
		"reset_deleted":   reset,
	}), "cron.confirm_tokens.completed")
	return nil
}

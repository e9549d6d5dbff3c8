package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

const (
	defaultImportStaleAfter = 30 * time.Minute
	defaultImportHistory    = 30 * 24 * time.Hour
)

type ImportReaperJobParams struct {
	Logger     *logger.Logger
	Repository importTaskRepo
	StaleAfter time.Duration
	History    time.Duration
}

type importTaskRepo interface {
	ResetStale(ctx context.Context, startedBefore time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewImportReaperJob returns tasks abandoned by a crashed worker to the
// queue and trims finished task history.
func NewImportReaperJob(params ImportReaperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("import task repository required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultImportStaleAfter
	}
	history := params.History
	if history <= 0 {
		history = defaultImportHistory
	}
	return &importReaperJob{
		logg:       params.Logger,
		repo:       params.Repository,
		staleAfter: staleAfter,
		history:    history,
		now:        time.Now,
	}, nil
}

type importReaperJob struct {
	logg       *logger.Logger
	repo       importTaskRepo
	staleAfter time.Duration
	history    time.Duration
	now        func() time.Time
}

func (j *importReaperJob) Name() string { return "import-reaper" }

func (j *importReaperJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	reset, err := j.repo.ResetStale(ctx, now.Add(-j.staleAfter))
	if err != nil {
		return fmt.Errorf("reset stale import tasks: %w", err)
	}
	deleted, err := j.repo.DeleteFinishedBefore(ctx, now.Add(-j.history))
	if err != nil {
		return fmt.Errorf("delete finished import tasks: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"tasks_reset":   reset,
		"tasks_deleted": deleted,
	})
	j.logg.Info(logCtx, "cron.import_reaper.completed")
	return nil
}

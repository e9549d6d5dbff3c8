package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
)

const (
	lockScope      = "import"
	lockRetryDelay = 15 * time.Second
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = 10 * time.Minute
)

type feedFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type importRunner interface {
	Import(ctx context.Context, req Request) (*Result, error)
}

type lockStore interface {
	redis.LockStore
	LockKey(scope, id string) string
}

// WorkerParams bundles the worker pool dependencies.
type WorkerParams struct {
	DB       txRunner
	Tasks    *TaskRepository
	Fetcher  feedFetcher
	Importer importRunner
	Locks    lockStore
	Outbox   outbox.Emitter
	Cache    catalog.Invalidator
	Metrics  *metrics.ImportMetrics
	Config   config.ImportConfig
	Logger   *logger.Logger
}

// Worker drains the import task queue. Imports for the same partner never
// overlap: a task whose partner is busy goes back to the queue.
type Worker struct {
	db       txRunner
	tasks    *TaskRepository
	fetcher  feedFetcher
	importer importRunner
	locks    lockStore
	outbox   outbox.Emitter
	cache    catalog.Invalidator
	metrics  *metrics.ImportMetrics
	cfg      config.ImportConfig
	logg     *logger.Logger
	now      func() time.Time
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.DB == nil {
		return nil, errors.New("db client required")
	}
	if params.Tasks == nil {
		return nil, errors.New("task repository required")
	}
	if params.Fetcher == nil {
		return nil, errors.New("fetcher required")
	}
	if params.Importer == nil {
		return nil, errors.New("importer required")
	}
	if params.Locks == nil {
		return nil, errors.New("lock store required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := params.Config
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Worker{
		db:       params.DB,
		tasks:    params.Tasks,
		fetcher:  params.Fetcher,
		importer: params.Importer,
		locks:    params.Locks,
		outbox:   params.Outbox,
		cache:    params.Cache,
		metrics:  params.Metrics,
		cfg:      cfg,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Run polls the queue with cfg.Workers goroutines until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logg.Info(w.logg.WithField(ctx, "workers", w.cfg.Workers), "import.worker.started")
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(w.logg.WithField(ctx, "slot", slot))
		}(i)
	}
	wg.Wait()
	w.logg.Info(ctx, "import.worker.stopped")
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()
	for {
		for ctx.Err() == nil {
			claimed, err := w.RunOnce(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logg.Error(ctx, "import.worker.poll_failed", err)
				}
				break
			}
			if !claimed {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes a single due task. It reports whether a
// task was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.tasks.ClaimNext(ctx, w.now())
	if err != nil {
		return false, fmt.Errorf("claim import task: %w", err)
	}
	if task == nil {
		return false, nil
	}
	return true, w.process(ctx, task)
}

func (w *Worker) process(ctx context.Context, task *models.ImportTask) error {
	taskID := task.ID.String()
	ctx = w.logg.WithTaskID(w.logg.WithUserID(ctx, task.UserID), taskID)

	lock, err := redis.NewLock(w.locks, w.locks.LockKey(lockScope, strconv.FormatInt(task.UserID, 10)), w.cfg.LockTTL)
	if err != nil {
		return err
	}
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		w.logg.Error(ctx, "import.lock.failed", err)
		return w.tasks.Defer(ctx, task.ID, w.now().Add(lockRetryDelay))
	}
	if !acquired {
		w.metrics.Observe(metrics.ImportOutcomeDeferred, 0)
		w.logg.Info(ctx, "import.deferred")
		return w.tasks.Defer(ctx, task.ID, w.now().Add(lockRetryDelay))
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			w.logg.Warn(w.logg.WithField(ctx, "error", err.Error()), "import.lock.release_failed")
		}
	}()

	done := w.metrics.Started()
	defer done()
	started := time.Now()

	// the lease is not renewed; stop before it can pass to another worker
	runCtx, cancel := context.WithTimeout(ctx, lock.TTL())
	result, err := w.run(runCtx, task)
	cancel()
	took := time.Since(started)
	if err != nil {
		return w.fail(ctx, task, err, took)
	}

	if err := w.tasks.MarkSucceeded(ctx, task.ID, result, w.now()); err != nil {
		return fmt.Errorf("mark import succeeded: %w", err)
	}
	w.metrics.Observe(metrics.ImportOutcomeSucceeded, took)
	w.metrics.AddSkipped(result.ItemsSkipped)
	w.metrics.AddListings(result.ListingsCreated)
	if w.cache != nil {
		if _, err := w.cache.Invalidate(ctx, catalog.CachedModels...); err != nil {
			w.logg.Warn(w.logg.WithField(ctx, "error", err.Error()), "catalog.cache.invalidate_failed")
		}
	}
	return nil
}

func (w *Worker) run(ctx context.Context, task *models.ImportTask) (*Result, error) {
	body, err := w.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		return nil, err
	}
	feed, err := ParseFeed(body)
	if err != nil {
		return nil, err
	}
	return w.importer.Import(ctx, Request{UserID: task.UserID, Feed: feed, TaskID: task.ID.String()})
}

// fail schedules a retry for transient errors while attempts remain and
// otherwise closes the task and queues import_failed.
func (w *Worker) fail(ctx context.Context, task *models.ImportTask, cause error, took time.Duration) error {
	reason := Describe(cause)
	// bookkeeping must survive a shutdown that interrupted the fetch
	ctx = w.logg.WithFields(context.WithoutCancel(ctx), map[string]any{"attempts": task.Attempts, "reason": reason})

	if retryable(cause) && task.Attempts < w.cfg.MaxAttempts {
		if err := w.tasks.MarkRetry(ctx, task.ID, reason, w.now().Add(retryBackoff(task.Attempts))); err != nil {
			return fmt.Errorf("schedule import retry: %w", err)
		}
		w.metrics.Observe(metrics.ImportOutcomeRetried, took)
		w.logg.Warn(ctx, "import.retry.scheduled")
		return nil
	}

	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := w.tasks.WithTx(tx).MarkFailed(ctx, task.ID, reason, w.now()); err != nil {
			return err
		}
		var email string
		if owner, err := users.NewRepository(tx).FindByID(ctx, task.UserID); err == nil {
			email = owner.Email
		}
		return w.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventImportFailed,
			AggregateType: enums.AggregateImportTask,
			AggregateID:   task.ID.String(),
			Actor:         &outbox.ActorRef{UserID: task.UserID, Role: string(enums.UserTypeShop)},
			Data: payloads.ImportFailedEvent{
				TaskID:   task.ID.String(),
				UserID:   task.UserID,
				Email:    email,
				URL:      task.URL,
				Reason:   reason,
				Attempts: task.Attempts,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("mark import failed: %w", err)
	}
	w.metrics.Observe(metrics.ImportOutcomeFailed, took)
	w.logg.Error(ctx, "import.failed", cause)
	return nil
}

// retryable treats untyped errors as transient; typed ones follow their code.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return typed.Retryable()
}

func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

package importer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// TaskRepository persists the import task queue.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	if tx == nil {
		return r
	}
	return &TaskRepository{db: tx}
}

func (r *TaskRepository) Create(ctx context.Context, task *models.ImportTask) error {
	if task.Status == "" {
		task.Status = enums.ImportTaskPending
	}
	return r.db.WithContext(ctx).Create(task).Error
}

// FindForUser loads a task only when userID submitted it.
func (r *TaskRepository) FindForUser(ctx context.Context, userID int64, id uuid.UUID) (*models.ImportTask, error) {
	var task models.ImportTask
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ClaimNext locks the oldest due pending task, marks it running and counts
// the attempt. It returns nil when nothing is due.
func (r *TaskRepository) ClaimNext(ctx context.Context, now time.Time) (*models.ImportTask, error) {
	var claimed *models.ImportTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.ImportTask
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND available_at <= ?", enums.ImportTaskPending, now.UTC()).
			Order("available_at ASC").
			Order("created_at ASC").
			Limit(1).
			Take(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		started := now.UTC()
		if err := tx.Model(&models.ImportTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]any{
				"status":     enums.ImportTaskRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"started_at": started,
			}).Error; err != nil {
			return err
		}
		task.Status = enums.ImportTaskRunning
		task.Attempts++
		task.StartedAt = &started
		claimed = &task
		return nil
	})
	return claimed, err
}

// MarkSucceeded records the import counters.
func (r *TaskRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, result *Result, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ImportTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             enums.ImportTaskSucceeded,
			"shop_id":            result.ShopID,
			"categories_created": result.CategoriesCreated,
			"products_created":   result.ProductsCreated,
			"parameters_created": result.ParametersCreated,
			"items_skipped":      result.ItemsSkipped,
			"last_error":         nil,
			"finished_at":        at.UTC(),
		}).Error
}

// Defer returns a task whose shop is busy to the queue without charging
// the attempt.
func (r *TaskRepository) Defer(ctx context.Context, id uuid.UUID, availableAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ImportTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.ImportTaskPending,
			"attempts":     gorm.Expr("CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END"),
			"available_at": availableAt.UTC(),
		}).Error
}

// MarkRetry puts a failed attempt back in the queue.
func (r *TaskRepository) MarkRetry(ctx context.Context, id uuid.UUID, reason string, availableAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ImportTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.ImportTaskPending,
			"last_error":   reason,
			"available_at": availableAt.UTC(),
		}).Error
}

// MarkFailed closes the task for good.
func (r *TaskRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ImportTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      enums.ImportTaskFailed,
			"last_error":  reason,
			"finished_at": at.UTC(),
		}).Error
}

// ResetStale returns running tasks whose worker vanished to the queue.
func (r *TaskRepository) ResetStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ImportTask{}).
		Where("status = ? AND started_at < ?", enums.ImportTaskRunning, startedBefore.UTC()).
		Updates(map[string]any{
			"status":       enums.ImportTaskPending,
			"available_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// DeleteFinishedBefore purges terminal tasks older than cutoff.
func (r *TaskRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?",
			[]enums.ImportTaskStatus{enums.ImportTaskSucceeded, enums.ImportTaskFailed}, cutoff.UTC()).
		Delete(&models.ImportTask{})
	return res.RowsAffected, res.Error
}

package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

// TaskDTO is the partner-facing view of a queued import.
type TaskDTO struct {
	ID                uuid.UUID              `json:"task_id"`
	URL               string                 `json:"url"`
	Status            enums.ImportTaskStatus `json:"status"`
	Attempts          int                    `json:"attempts"`
	LastError         *string                `json:"last_error,omitempty"`
	ShopID            *int64                 `json:"shop_id,omitempty"`
	CategoriesCreated int                    `json:"categories_created"`
	ProductsCreated   int                    `json:"products_created"`
	ParametersCreated int                    `json:"parameters_created"`
	ItemsSkipped      int                    `json:"items_skipped"`
	CreatedAt         time.Time              `json:"created_at"`
	FinishedAt        *time.Time             `json:"finished_at,omitempty"`
}

func TaskFromModel(t *models.ImportTask) *TaskDTO {
	if t == nil {
		return nil
	}
	return &TaskDTO{
		ID:                t.ID,
		URL:               t.URL,
		Status:            t.Status,
		Attempts:          t.Attempts,
		LastError:         t.LastError,
		ShopID:            t.ShopID,
		CategoriesCreated: t.CategoriesCreated,
		ProductsCreated:   t.ProductsCreated,
		ParametersCreated: t.ParametersCreated,
		ItemsSkipped:      t.ItemsSkipped,
		CreatedAt:         t.CreatedAt,
		FinishedAt:        t.FinishedAt,
	}
}

// Service queues feed imports and reports their progress.
type Service interface {
	Submit(ctx context.Context, userID int64, rawURL string) (*TaskDTO, error)
	Task(ctx context.Context, userID int64, taskID string) (*TaskDTO, error)
}

type taskStore interface {
	Create(ctx context.Context, task *models.ImportTask) error
	FindForUser(ctx context.Context, userID int64, id uuid.UUID) (*models.ImportTask, error)
}

type service struct {
	tasks taskStore
	logg  *logger.Logger
}

func NewService(tasks taskStore, logg *logger.Logger) (Service, error) {
	if tasks == nil {
		return nil, fmt.Errorf("task repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{tasks: tasks, logg: logg}, nil
}

// Submit validates the url and enqueues a pending task; the import itself
// runs in the worker.
func (s *service) Submit(ctx context.Context, userID int64, rawURL string) (*TaskDTO, error) {
	feedURL, err := ValidateFeedURL(rawURL)
	if err != nil {
		return nil, err
	}
	task := &models.ImportTask{
		UserID: userID,
		URL:    feedURL,
		Status: enums.ImportTaskPending,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "enqueue import")
	}
	s.logg.Info(s.logg.WithTaskID(s.logg.WithUserID(ctx, userID), task.ID.String()), "import.task.queued")
	return TaskFromModel(task), nil
}

func (s *service) Task(ctx context.Context, userID int64, taskID string) (*TaskDTO, error) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "import task not found")
	}
	task, err := s.tasks.FindForUser(ctx, userID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "import task not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load import task")
	}
	return TaskFromModel(task), nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// ImportTask is a queued request to replace a shop's catalog from a feed URL.
type ImportTask struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID            int64                  `gorm:"column:user_id;not null;index"`
	URL               string                 `gorm:"column:url;not null"`
	Status            enums.ImportTaskStatus `gorm:"column:status;type:varchar(16);not null;index"`
	Attempts          int                    `gorm:"column:attempts;not null;default:0"`
	LastError         *string                `gorm:"column:last_error"`
	ShopID            *int64                 `gorm:"column:shop_id"`
	CategoriesCreated int                    `gorm:"column:categories_created;not null;default:0"`
	ProductsCreated   int                    `gorm:"column:products_created;not null;default:0"`
	ParametersCreated int                    `gorm:"column:parameters_created;not null;default:0"`
	ItemsSkipped      int                    `gorm:"column:items_skipped;not null;default:0"`
	AvailableAt       time.Time              `gorm:"column:available_at;not null;index"`
	StartedAt         *time.Time             `gorm:"column:started_at"`
	FinishedAt        *time.Time             `gorm:"column:finished_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *ImportTask) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.AvailableAt.IsZero() {
		t.AvailableAt = time.Now().UTC()
	}
	return nil
}

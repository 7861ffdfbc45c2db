package fees

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
)

// Repository reads the versioned rate configuration. Schedules are append
// only; there is no update path.
type Repository interface {
	Latest(ctx context.Context) (*models.FeeSchedule, error)
	ByVersion(ctx context.Context, version int) (*models.FeeSchedule, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) (Repository, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection required")
	}
	return &repository{db: conn}, nil
}

func (r *repository) Latest(ctx context.Context) (*models.FeeSchedule, error) {
	var schedule models.FeeSchedule
	err := r.db.WithContext(ctx).
		Order("version DESC").
		First(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (r *repository) ByVersion(ctx context.Context, version int) (*models.FeeSchedule, error) {
	var schedule models.FeeSchedule
	err := r.db.WithContext(ctx).
		Where("version = ?", version).
		First(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

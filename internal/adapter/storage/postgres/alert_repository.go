package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type AlertRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewAlertRepository(db *gorm.DB, log *zap.Logger) ports.AlertRepository {
	return &AlertRepository{
		db:  db,
		log: log,
	}
}

func (r *AlertRepository) Save(ctx context.Context, alert *domain.Alert) error {
	return r.db.WithContext(ctx).Save(alert).Error
}

func (r *AlertRepository) FindByID(ctx context.Context, id string) (*domain.Alert, error) {
	var alert domain.Alert
	err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *AlertRepository) ListUnacknowledged(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	var alerts []domain.Alert
	err := r.db.WithContext(ctx).
		Where("acknowledged = ?", false).
		Order("created_at desc").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

func (r *AlertRepository) Acknowledge(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.Alert{}).
		Where("id = ?", id).
		Update("acknowledged", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.NotFoundError{Resource: "alert", ID: id}
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
)

// ConditionRepository handles the operator's condition registry.
type ConditionRepository struct {
	db *gorm.DB
}

func NewConditionRepository() *ConditionRepository {
	return &ConditionRepository{db: database.MainDB}
}

func (r *ConditionRepository) WithDB(db *gorm.DB) *ConditionRepository {
	return &ConditionRepository{db: db}
}

func (r *ConditionRepository) Create(ctx context.Context, c *model.AutoTradeCondition) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *ConditionRepository) FindByID(ctx context.Context, id uint) (*model.AutoTradeCondition, error) {
	var c model.AutoTradeCondition
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListEnabled returns enabled conditions ordered by id.
func (r *ConditionRepository) ListEnabled(ctx context.Context) ([]model.AutoTradeCondition, error) {
	var out []model.AutoTradeCondition
	err := r.db.WithContext(ctx).Where("is_enabled = ?", true).Order("id ASC").Find(&out).Error
	return out, err
}

// UpdateAPIID stores the broker sequence id last seen for the condition.
func (r *ConditionRepository) UpdateAPIID(ctx context.Context, id uint, apiID string) error {
	return r.db.WithContext(ctx).
		Model(&model.AutoTradeCondition{}).
		Where("id = ?", id).
		Update("api_condition_id", apiID).Error
}

func (r *ConditionRepository) MarkScanned(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.AutoTradeCondition{}).
		Where("id = ?", id).
		Update("last_scanned_at", at).Error
}

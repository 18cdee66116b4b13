package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
)

// SettingsRepository reads and writes the auto-trade policy singleton.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{db: database.MainDB}
}

func (r *SettingsRepository) WithDB(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the current policy. When no row exists the disabled defaults
// are returned unsaved.
func (r *SettingsRepository) Get(ctx context.Context) (*model.AutoTradeSettings, error) {
	var s model.AutoTradeSettings
	err := r.db.WithContext(ctx).Order("id ASC").First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.AutoTradeSettings{
				MaxInvestAmount: model.DefaultMaxInvestAmount,
				StopLossRate:    model.DefaultStopLossRate,
				TakeProfitRate:  model.DefaultTakeProfitRate,
			}, nil
		}
		return nil, err
	}
	return &s, nil
}

// Save writes the policy, creating the singleton when needed.
func (r *SettingsRepository) Save(ctx context.Context, s *model.AutoTradeSettings) error {
	if s.ID == 0 {
		var existing model.AutoTradeSettings
		err := r.db.WithContext(ctx).Order("id ASC").First(&existing).Error
		if err == nil {
			s.ID = existing.ID
			s.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return r.db.WithContext(ctx).Save(s).Error
}

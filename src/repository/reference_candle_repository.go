package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autotrader/src/database"
	"autotrader/src/model"
)

// ReferenceCandleRepository stores one reference candle per (condition, stock).
type ReferenceCandleRepository struct {
	db *gorm.DB
}

func NewReferenceCandleRepository() *ReferenceCandleRepository {
	return &ReferenceCandleRepository{db: database.MainDB}
}

func (r *ReferenceCandleRepository) WithDB(db *gorm.DB) *ReferenceCandleRepository {
	return &ReferenceCandleRepository{db: db}
}

// Upsert inserts rc or replaces the candle stored for its (condition, stock)
// and re-arms it.
func (r *ReferenceCandleRepository) Upsert(ctx context.Context, rc *model.ReferenceCandle) error {
	rc.IsActive = true
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "condition_id"}, {Name: "stock_code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"stock_name", "candle_date", "open_price", "high_price", "close_price",
				"volume", "gain_rate", "target_price", "is_active", "updated_at",
			}),
		}).
		Create(rc).Error
}

// ListActive returns armed candles.
func (r *ReferenceCandleRepository) ListActive(ctx context.Context) ([]model.ReferenceCandle, error) {
	var out []model.ReferenceCandle
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&out).Error
	return out, err
}

// MarkTriggered disarms a candle after its pull-back fired.
func (r *ReferenceCandleRepository) MarkTriggered(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ReferenceCandle{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "triggered_at": at}).Error
}

// DeleteOlderThan removes candles dated before cutoff.
func (r *ReferenceCandleRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("candle_date < ?", cutoff).Delete(&model.ReferenceCandle{})
	return res.RowsAffected, res.Error
}

// Find returns the candle stored for (condition, stock), or (nil, nil).
func (r *ReferenceCandleRepository) Find(ctx context.Context, conditionID uint, stockCode string) (*model.ReferenceCandle, error) {
	var rc model.ReferenceCandle
	err := r.db.WithContext(ctx).
		Where("condition_id = ? AND stock_code = ?", conditionID, stockCode).
		First(&rc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rc, nil
}

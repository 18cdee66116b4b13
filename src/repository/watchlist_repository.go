package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autotrader/src/database"
	"autotrader/src/model"
)

// WatchlistRepository handles the strategy watch-list and its condition
// sync records.
type WatchlistRepository struct {
	db *gorm.DB
}

func NewWatchlistRepository() *WatchlistRepository {
	return &WatchlistRepository{db: database.MainDB}
}

func (r *WatchlistRepository) WithDB(db *gorm.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// AddManual puts a stock on the watch-list as an operator entry.
func (r *WatchlistRepository) AddManual(ctx context.Context, stockCode, stockName string) error {
	w := model.WatchlistStock{
		StockCode:       stockCode,
		StockName:       stockName,
		SourceType:      model.WatchlistSourceManual,
		ConditionStatus: model.ConditionStatusActive,
		IsActive:        true,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stock_code"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"source_type":      model.WatchlistSourceManual,
				"condition_status": model.ConditionStatusActive,
				"is_active":        true,
			}),
		}).
		Create(&w).Error
}

// ListActive returns every active watch-list entry.
func (r *WatchlistRepository) ListActive(ctx context.Context) ([]model.WatchlistStock, error) {
	var out []model.WatchlistStock
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *WatchlistRepository) FindByStock(ctx context.Context, stockCode string) (*model.WatchlistStock, error) {
	var w model.WatchlistStock
	if err := r.db.WithContext(ctx).Where("stock_code = ?", stockCode).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// UpsertConditionStock records that a condition surfaced stockCode. Manual
// entries keep their source type.
func (r *WatchlistRepository) UpsertConditionStock(ctx context.Context, conditionID uint, stockCode, stockName string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.WatchlistStock
		err := tx.Where("stock_code = ?", stockCode).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			w := model.WatchlistStock{
				StockCode:       stockCode,
				StockName:       stockName,
				SourceType:      model.WatchlistSourceCondition,
				ConditionStatus: model.ConditionStatusActive,
				IsActive:        true,
				LastSyncedAt:    &at,
			}
			if err := tx.Create(&w).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			updates := map[string]interface{}{"last_synced_at": at}
			if existing.SourceType == model.WatchlistSourceCondition {
				updates["condition_status"] = model.ConditionStatusActive
				updates["is_active"] = true
			}
			if stockName != "" && existing.StockName == "" {
				updates["stock_name"] = stockName
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
		}

		sync := model.ConditionWatchlistSync{
			ConditionID: conditionID,
			StockCode:   stockCode,
			Status:      model.ConditionStatusActive,
			LastSeenAt:  at,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "condition_id"}, {Name: "stock_code"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":       model.ConditionStatusActive,
				"last_seen_at": at,
				"updated_at":   at,
			}),
		}).Create(&sync).Error
	})
}

// MarkMissingRemoved flags the condition's sync rows whose stock is not in
// present as REMOVED, then deactivates CONDITION-sourced stocks that no
// condition still lists. It returns the number of stocks deactivated.
func (r *WatchlistRepository) MarkMissingRemoved(ctx context.Context, conditionID uint, present []string, at time.Time) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&model.ConditionWatchlistSync{}).
			Where("condition_id = ? AND status = ?", conditionID, model.ConditionStatusActive)
		if len(present) > 0 {
			q = q.Where("stock_code NOT IN ?", present)
		}
		if err := q.Updates(map[string]interface{}{
			"status":     model.ConditionStatusRemoved,
			"updated_at": at,
		}).Error; err != nil {
			return err
		}

		stillListed := tx.Model(&model.ConditionWatchlistSync{}).
			Select("stock_code").
			Where("status = ?", model.ConditionStatusActive)
		res := tx.Model(&model.WatchlistStock{}).
			Where("source_type = ? AND condition_status = ?", model.WatchlistSourceCondition, model.ConditionStatusActive).
			Where("stock_code NOT IN (?)", stillListed).
			Updates(map[string]interface{}{
				"condition_status": model.ConditionStatusRemoved,
				"is_active":        false,
				"last_synced_at":   at,
			})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "WatchlistRepository",
			"op":           "MarkMissingRemoved",
			"condition_id": conditionID,
		}).WithError(err).Error("Failed to mark missing watch-list stocks")
	}
	return removed, err
}

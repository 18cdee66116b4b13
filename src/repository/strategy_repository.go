package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
)

// StrategyRepository handles trading strategies and their signal history.
type StrategyRepository struct {
	db *gorm.DB
}

func NewStrategyRepository() *StrategyRepository {
	return &StrategyRepository{db: database.MainDB}
}

func (r *StrategyRepository) WithDB(db *gorm.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

func (r *StrategyRepository) Create(ctx context.Context, s *model.TradingStrategy) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// ListEnabled returns enabled strategies ordered by id.
func (r *StrategyRepository) ListEnabled(ctx context.Context) ([]model.TradingStrategy, error) {
	var out []model.TradingStrategy
	err := r.db.WithContext(ctx).Where("is_enabled = ?", true).Order("id ASC").Find(&out).Error
	return out, err
}

// SetEnabled toggles a strategy by name.
func (r *StrategyRepository) SetEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TradingStrategy{}).
		Where("name = ?", name).
		Update("is_enabled", enabled)
	return res.RowsAffected > 0, res.Error
}

// CreateSignal appends to the strategy-signal history.
func (r *StrategyRepository) CreateSignal(ctx context.Context, s *model.StrategySignal) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "StrategyRepository",
			"op":          "CreateSignal",
			"strategy_id": s.StrategyID,
			"stock":       s.StockCode,
		}).WithError(err).Error("Failed to record strategy signal")
		return err
	}
	return nil
}

// HasSignalForBar reports whether the strategy already fired for the stock
// on the bar at barTime.
func (r *StrategyRepository) HasSignalForBar(ctx context.Context, strategyID uint, stockCode string, barTime time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.StrategySignal{}).
		Where("strategy_id = ? AND stock_code = ? AND bar_time = ?", strategyID, stockCode, barTime.UTC()).
		Count(&n).Error
	return n > 0, err
}

func (r *StrategyRepository) MarkSignalExecuted(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&model.StrategySignal{}).
		Where("id = ?", id).
		Update("status", model.StrategySignalExecuted).Error
}

// ExpireSignalsBefore marks ACTIVE history rows older than cutoff EXPIRED.
func (r *StrategyRepository) ExpireSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.StrategySignal{}).
		Where("status = ? AND detected_at < ?", model.StrategySignalActive, cutoff).
		Update("status", model.StrategySignalExpired)
	return res.RowsAffected, res.Error
}

// ListSignals returns the newest strategy signals first.
func (r *StrategyRepository) ListSignals(ctx context.Context, limit int) ([]model.StrategySignal, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.StrategySignal
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

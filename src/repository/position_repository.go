package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
)

// PositionRepository handles persistence for Position rows.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position.
func (r *PositionRepository) Create(ctx context.Context, p *model.Position) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "PositionRepository",
			"op":    "Create",
			"stock": p.StockCode,
		}).WithError(err).Error("Failed to create position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": p.ID,
		"stock":       p.StockCode,
		"qty":         p.BuyQuantity,
	}).Info("Position opened")
	return nil
}

// FindByID fetches a position by primary key. Missing rows return (nil, nil).
func (r *PositionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var p model.Position
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListHolding returns open positions, oldest first.
func (r *PositionRepository) ListHolding(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusHolding).
		Order("buy_time ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListRecent returns the newest positions first.
func (r *PositionRepository) ListRecent(ctx context.Context, limit int) ([]model.Position, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.Position
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// HasHolding reports whether a HOLDING position exists for the stock.
func (r *PositionRepository) HasHolding(ctx context.Context, stockCode string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("stock_code = ? AND status = ?", stockCode, model.PositionStatusHolding).
		Count(&n).Error
	return n > 0, err
}

// UpdateQuote stores the latest mark and P/L of an open position.
func (r *PositionRepository) UpdateQuote(ctx context.Context, id uint, price, profitLoss int64, profitRate float64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", id, model.PositionStatusHolding).
		Updates(map[string]interface{}{
			"current_price": price,
			"profit_loss":   profitLoss,
			"profit_rate":   profitRate,
			"checked_at":    at,
		}).Error
}

// FillCorrection carries the broker-confirmed fill of a buy.
type FillCorrection struct {
	BuyPrice        int64
	BuyQuantity     int64
	BuyAmount       int64
	ActualBuyAmount int64
	StopLossPrice   int64
	TakeProfitPrice int64
}

// ApplyFillCorrection replaces the provisional fill with the confirmed one.
func (r *PositionRepository) ApplyFillCorrection(ctx context.Context, id uint, fc FillCorrection) error {
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"buy_price":         fc.BuyPrice,
			"buy_quantity":      fc.BuyQuantity,
			"buy_amount":        fc.BuyAmount,
			"actual_buy_amount": fc.ActualBuyAmount,
			"stop_loss_price":   fc.StopLossPrice,
			"take_profit_price": fc.TakeProfitPrice,
			"fill_corrected":    true,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "ApplyFillCorrection",
			"position_id": id,
		}).WithError(err).Error("Failed to apply fill correction")
	}
	return err
}

// Close moves a HOLDING position to a closed status. It reports false when
// the position was no longer HOLDING.
func (r *PositionRepository) Close(ctx context.Context, id uint, status string, sellPrice, profitLoss int64, profitRate float64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", id, model.PositionStatusHolding).
		Updates(map[string]interface{}{
			"status":        status,
			"sell_price":    sellPrice,
			"sell_time":     at,
			"current_price": sellPrice,
			"profit_loss":   profitLoss,
			"profit_rate":   profitRate,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

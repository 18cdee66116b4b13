package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
)

// SellOrderRepository handles persistence for SellOrder rows.
type SellOrderRepository struct {
	db *gorm.DB
}

func NewSellOrderRepository() *SellOrderRepository {
	return &SellOrderRepository{db: database.MainDB}
}

func (r *SellOrderRepository) WithDB(db *gorm.DB) *SellOrderRepository {
	return &SellOrderRepository{db: db}
}

// Create inserts a new sell attempt.
func (r *SellOrderRepository) Create(ctx context.Context, o *model.SellOrder) error {
	if err := r.db.WithContext(ctx).Create(o).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "SellOrderRepository",
			"op":          "Create",
			"position_id": o.PositionID,
		}).WithError(err).Error("Failed to create sell order")
		return err
	}
	return nil
}

func (r *SellOrderRepository) MarkOrdered(ctx context.Context, id uint, orderID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.SellOrder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.SellOrderStatusOrdered,
			"order_id":   orderID,
			"ordered_at": at,
		}).Error
}

func (r *SellOrderRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	return r.db.WithContext(ctx).
		Model(&model.SellOrder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         model.SellOrderStatusFailed,
			"failure_reason": reason,
		}).Error
}

// ListByPosition returns the sell attempts of a position, oldest first.
func (r *SellOrderRepository) ListByPosition(ctx context.Context, positionID uint) ([]model.SellOrder, error) {
	var out []model.SellOrder
	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

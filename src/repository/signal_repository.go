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

// SignalRepository handles persistence for Signal rows.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new repository instance using the main read/write database.
func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// FindByID fetches a signal by primary key. Missing rows return (nil, nil).
func (r *SignalRepository) FindByID(ctx context.Context, id uint) (*model.Signal, error) {
	var sig model.Signal
	err := r.db.WithContext(ctx).First(&sig, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch signal by ID")
		return nil, err
	}
	return &sig, nil
}

// FindByIdentity fetches the signal for one (day, kind, source, stock).
func (r *SignalRepository) FindByIdentity(ctx context.Context, day, kind string, sourceID uint, stockCode string) (*model.Signal, error) {
	var sig model.Signal
	err := r.db.WithContext(ctx).
		Where("detected_date = ? AND kind = ? AND source_id = ? AND stock_code = ?", day, kind, sourceID, stockCode).
		First(&sig).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":  "SignalRepository",
			"op":    "FindByIdentity",
			"kind":  kind,
			"stock": stockCode,
		}).WithError(err).Error("Failed to fetch signal by identity")
		return nil, err
	}
	return &sig, nil
}

// CreateIfAbsent inserts sig unless a row with the same identity exists.
// It reports whether this call created the row.
func (r *SignalRepository) CreateIfAbsent(ctx context.Context, sig *model.Signal) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "detected_date"}, {Name: "kind"}, {Name: "source_id"}, {Name: "stock_code"},
			},
			DoNothing: true,
		}).
		Create(sig)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":  "SignalRepository",
			"op":    "CreateIfAbsent",
			"kind":  sig.Kind,
			"stock": sig.StockCode,
		}).WithError(res.Error).Error("Failed to create signal")
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RefreshDetection moves detected_at forward on a row that is still PENDING.
func (r *SignalRepository) RefreshDetection(ctx context.Context, id uint, detectedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("id = ? AND status = ?", id, model.SignalStatusPending).
		Updates(map[string]interface{}{"detected_at": detectedAt, "updated_at": detectedAt})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatus moves a signal to status only when its current status is one
// of from. It returns the number of rows changed (0 or 1).
func (r *SignalRepository) UpdateStatus(ctx context.Context, id uint, from []string, status, reason, orderID string, at time.Time) (int64, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": at,
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	if orderID != "" {
		updates["order_id"] = orderID
	}

	res := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SignalRepository",
			"op":     "UpdateStatus",
			"id":     id,
			"status": status,
		}).WithError(res.Error).Error("Failed to update signal status")
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListByStatus returns signals oldest first. An empty status lists all.
func (r *SignalRepository) ListByStatus(ctx context.Context, status string, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []model.Signal
	err := q.Order("detected_at ASC, id ASC").Limit(limit).Find(&out).Error
	return out, err
}

// ListRecent returns the newest signals first.
func (r *SignalRepository) ListRecent(ctx context.Context, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.Signal
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// CountByStatus groups all signals by status.
func (r *SignalRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.Total
	}
	return out, nil
}

// CountActiveForStock counts PROCESSING/ORDERED signals for a stock on a
// trading day, ignoring excludeID.
func (r *SignalRepository) CountActiveForStock(ctx context.Context, stockCode, day string, excludeID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("stock_code = ? AND detected_date = ? AND id <> ? AND status IN ?",
			stockCode, day, excludeID, []string{model.SignalStatusProcessing, model.SignalStatusOrdered}).
		Count(&n).Error
	return n, err
}

// ExpirePendingBefore marks PENDING rows detected before cutoff as EXPIRED.
func (r *SignalRepository) ExpirePendingBefore(ctx context.Context, cutoff time.Time, reason string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("status = ? AND detected_at < ?", model.SignalStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":         model.SignalStatusExpired,
			"failure_reason": reason,
			"updated_at":     at,
		})
	return res.RowsAffected, res.Error
}

// CancelAllPending marks every PENDING row CANCELLED.
func (r *SignalRepository) CancelAllPending(ctx context.Context, reason string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("status = ?", model.SignalStatusPending).
		Updates(map[string]interface{}{
			"status":         model.SignalStatusCancelled,
			"failure_reason": reason,
			"updated_at":     at,
		})
	return res.RowsAffected, res.Error
}

// DeleteTerminalBefore removes ORDERED and FAILED rows last touched before
// cutoff.
func (r *SignalRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{model.SignalStatusOrdered, model.SignalStatusFailed}, cutoff).
		Delete(&model.Signal{})
	return res.RowsAffected, res.Error
}

// Delete removes a signal row.
func (r *SignalRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.Signal{}, id).Error
}

package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
)

// ExceptionRepository handles persistence of captured worker failures.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository uses the main database.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{db: database.MainDB}
}

func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create stores a captured failure.
func (r *ExceptionRepository) Create(ctx context.Context, exc *model.Exception) error {
	if err := r.db.WithContext(ctx).Create(exc).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ExceptionRepository",
			"op":     "Create",
			"module": exc.Module,
			"method": exc.Method,
		}).WithError(err).Error("Failed to store exception")
		return err
	}
	return nil
}

// ListRecent returns the newest exceptions first.
func (r *ExceptionRepository) ListRecent(ctx context.Context, limit int) ([]model.Exception, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []model.Exception
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

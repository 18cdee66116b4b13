// Package migrations holds data migrations that go beyond AutoMigrate.
package migrations

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataMigration records one applied data migration.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

// Step is a data migration with a stable id.
type Step struct {
	ID    string
	Apply func(tx *gorm.DB) error
}

// Steps lists the data migrations in order. Append only; never renumber.
func Steps(presetsFile string) []Step {
	return []Step{
		{ID: "00001_seed_auto_trade_settings", Apply: seedAutoTradeSettings},
		{ID: "00002_seed_trading_strategies", Apply: seedTradingStrategies(presetsFile)},
	}
}

// Run applies every step not yet recorded in data_migrations.
func Run(db *gorm.DB, presetsFile string) error {
	if err := db.AutoMigrate(&DataMigration{}); err != nil {
		return fmt.Errorf("ensure data_migrations: %w", err)
	}
	for _, step := range Steps(presetsFile) {
		applied, err := apply(db, step)
		if err != nil {
			return err
		}
		if applied {
			logrus.WithField("migration", step.ID).Info("[database] data migration applied")
		}
	}
	return nil
}

// apply runs one step and its bookkeeping row in a single transaction, so
// a failed step is retried on the next start.
func apply(db *gorm.DB, step Step) (bool, error) {
	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var done DataMigration
		switch err := tx.Where("id = ?", step.ID).Take(&done).Error; {
		case err == nil:
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("lookup %s: %w", step.ID, err)
		}

		if err := step.Apply(tx); err != nil {
			return fmt.Errorf("apply %s: %w", step.ID, err)
		}
		applied = true
		return tx.Create(&DataMigration{ID: step.ID, AppliedAt: time.Now().UTC()}).Error
	})
	return applied, err
}

package database

import (
	"fmt"

	"autotrader/src/database/migrations"
	"autotrader/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB opens the configured database and runs schema and data
// migrations. Call once at startup.
func InitMainDB() error {
	config := GetConfig()

	db, err := Open(config.Driver, config.DSN(), config.GormLogLevel)
	if err != nil {
		return err
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	if err := Migrate(MainDB, config.StrategyPresetsFile); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

// Models lists every table of the write-side schema.
func Models() []interface{} {
	return []interface{}{
		&model.Signal{},
		&model.Position{},
		&model.SellOrder{},
		&model.AutoTradeSettings{},
		&model.AutoTradeCondition{},
		&model.WatchlistStock{},
		&model.ConditionWatchlistSync{},
		&model.TradingStrategy{},
		&model.StrategySignal{},
		&model.ReferenceCandle{},
		&model.Exception{},
		&migrations.DataMigration{},
	}
}

// Migrate brings db to the current schema and applies pending data
// migrations. presetsFile is optional.
func Migrate(db *gorm.DB, presetsFile string) error {
	if err := migrations.RenameLegacyTables(db); err != nil {
		return fmt.Errorf("failed to rename legacy tables: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.Run(db, presetsFile); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}

	return nil
}

package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// legacyTables maps table names used by earlier deployments to the current
// ones, so AutoMigrate extends existing data instead of creating empty tables.
var legacyTables = map[string]string{
	"pending_buy_signals":    "signals",
	"auto_trade_positions":   "positions",
	"auto_trade_sell_orders": "sell_orders",
}

// RenameLegacyTables renames old tables when the new name is still free.
func RenameLegacyTables(db *gorm.DB) error {
	migrator := db.Migrator()
	for from, to := range legacyTables {
		if !migrator.HasTable(from) || migrator.HasTable(to) {
			continue
		}
		if err := migrator.RenameTable(from, to); err != nil {
			return fmt.Errorf("rename %s to %s: %w", from, to, err)
		}
	}
	return nil
}

package database

import (
	"fmt"
	"strings"
	"unicode"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenInMemory opens a migrated, shared-cache in-memory SQLite database.
// Connections with the same name see the same data, so use a unique name
// per test or paper session.
func OpenInMemory(name string) (*gorm.DB, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", clean)
	db, err := Open(DriverSQLite, dsn, int(logger.Silent))
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, ""); err != nil {
		return nil, err
	}
	return db, nil
}

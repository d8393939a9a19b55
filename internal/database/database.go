// Package database opens the local snapshot database and defines the models
// for its tables. The snapshot is SQLite; readers open it with a single
// connection and conservative pragmas.
package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open opens a snapshot database for reading and writing. Used by the
// construction commands that build per-table databases and assemble them.
func Open(path string) (*gorm.DB, error) {
	return open(path, false)
}

// OpenReadOnly opens the snapshot database for queries only.
func OpenReadOnly(path string) (*gorm.DB, error) {
	return open(path, true)
}

func open(path string, readOnly bool) (*gorm.DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	if readOnly {
		dsn = "file:" + path + "?mode=ro&_busy_timeout=5000"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database %s: %w", path, err)
	}

	// SQLite locks at the database level; a single connection avoids
	// SQLITE_BUSY churn.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Tables lists the user tables of the snapshot database.
func Tables(db *gorm.DB) ([]string, error) {
	var names []string
	err := db.Raw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
	).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return names, nil
}

// RowCount counts the rows of a table. The table name must come from
// Tables; it is interpolated into the statement.
func RowCount(db *gorm.DB, table string) (int64, error) {
	tables, err := Tables(db)
	if err != nil {
		return 0, err
	}
	found := false
	for _, name := range tables {
		if name == table {
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("no such table: %s", table)
	}

	var count int64
	if err := db.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return count, nil
}

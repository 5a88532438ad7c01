// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rental-rfid-backend/internal/db"
	"rental-rfid-backend/internal/model"
)

// Open creates a migrated SQLite database in the test's temp dir. Transactions
// begin IMMEDIATE so concurrent writers queue on the busy timeout instead of failing.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate", filepath.Join(t.TempDir(), "test.db"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gormDB); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	sqlDB, _ := gormDB.DB()
	t.Cleanup(func() { sqlDB.Close() })
	return gormDB
}

// SeedItem inserts an inventory item with the given status.
func SeedItem(t testing.TB, gormDB *gorm.DB, status model.ItemStatus) *model.InventoryItem {
	t.Helper()

	item := &model.InventoryItem{Status: status}
	if err := gormDB.Create(item).Error; err != nil {
		t.Fatalf("failed to seed inventory item: %v", err)
	}
	return item
}

package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"rental-rfid-backend/config"
	"rental-rfid-backend/internal/model"
)

func TestInit_SQLiteMigrates(t *testing.T) {
	gormDB, err := Init(&config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "init.db"), LogLevel: "silent"})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	for _, table := range []interface{}{&model.RfidTag{}, &model.RfidDetection{}, &model.InventoryItem{}, &model.InventoryMovement{}, &model.PushSubscription{}} {
		assert.True(t, gormDB.Migrator().HasTable(table))
	}
	assert.True(t, gormDB.Migrator().HasIndex(&model.RfidDetection{}, "idx_detection_reader_time"))
	assert.True(t, gormDB.Migrator().HasIndex(&model.RfidDetection{}, "idx_detection_direction_time"))
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("SILENT"))
	assert.Equal(t, logger.Info, logLevel("info"))
	assert.Equal(t, logger.Warn, logLevel(""))
}

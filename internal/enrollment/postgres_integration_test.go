package enrollment

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"rental-rfid-backend/config"
	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/db"
	"rental-rfid-backend/internal/db/dbtest"
	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/model"
	"rental-rfid-backend/internal/store"
)

// setupPostgres starts PostgreSQL in a container so row locks behave as in production.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("rfid_test"),
		postgres.WithUsername("rfid"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "postgres", DSN: dsn, MaxOpenConns: 20, LogLevel: "silent"})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	t.Cleanup(func() { sqlDB.Close() })
	return gormDB
}

func TestPostgres_ConcurrentEnrollSameItem(t *testing.T) {
	gormDB := setupPostgres(t)
	s := store.New(gormDB)
	m := NewManager(s, logger.NewNop())
	ctx := context.Background()
	item := dbtest.SeedItem(t, gormDB, model.ItemStatusIn)

	const n = 10
	tags := make([]*model.RfidTag, n)
	for i := range tags {
		tags[i] = newTag(t, s, "PG"+string(rune('A'+i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Enroll(ctx, tags[i].ID, item.ID, operator)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrItemAlreadyTagged)
	}
	assert.Equal(t, 1, wins)
	assertConsistent(t, gormDB)

	var movements int64
	require.NoError(t, gormDB.Model(&model.InventoryMovement{}).Where("type = ?", model.MovementEnrollment).Count(&movements).Error)
	assert.EqualValues(t, 1, movements)
}

func TestPostgres_ConcurrentRegisterSameEPC(t *testing.T) {
	gormDB := setupPostgres(t)
	s := store.New(gormDB)
	m := NewManager(s, logger.NewNop())
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Register(ctx, "E2801160600002", nil, "", operator)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	var count int64
	require.NoError(t, gormDB.Model(&model.RfidTag{}).Where("epc = ?", "E2801160600002").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func subscriptionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "kinds", "created_at"})
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, 1, db, &webpush.Options{}, logger.NewNop())

	assert.True(t, wp.Dispatch(Alert{Kind: model.AlertUnknownTag, TagID: "t1"}))
	// The queue holds one alert and nothing consumes it.
	assert.False(t, wp.Dispatch(Alert{Kind: model.AlertUnknownTag, TagID: "t2"}))

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, "t1", job.TagID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, 4, gormDB, &webpush.Options{}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends only to subscriptions that want the kind", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		var mu sync.Mutex
		var endpoints []string
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				var got Alert
				assert.NoError(t, json.Unmarshal(payload, &got))
				assert.Equal(t, model.AlertRfidMovement, got.Kind)
				assert.Equal(t, "item-1", got.InventoryItemID)
				mu.Lock()
				endpoints = append(endpoints, sub.Endpoint)
				mu.Unlock()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions"`).
			WillReturnRows(subscriptionRows().
				AddRow("https://example.com/all", "k1", "a1", []byte(`[]`), time.Now()).
				AddRow("https://example.com/unknown-only", "k2", "a2", []byte(`["unknown_tag"]`), time.Now()).
				AddRow("https://example.com/movements", "k3", "a3", []byte(`["rfid_movement"]`), time.Now()))

		wp.Dispatch(Alert{Kind: model.AlertRfidMovement, Title: "Item checked in", InventoryItemID: "item-1"})
		wg.Wait()

		assert.ElementsMatch(t, []string{"https://example.com/all", "https://example.com/movements"}, endpoints)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions"`).
			WillReturnRows(subscriptionRows().
				AddRow("https://example.com/expired", "k", "a", []byte(`[]`), time.Now()))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(Alert{Kind: model.AlertUnknownTag, TagID: "t9"})

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})
}

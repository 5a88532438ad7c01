// Package notification delivers operator alerts to browser push subscriptions.
package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/model"
)

// Alert is one operator notification.
type Alert struct {
	Kind            model.AlertKind `json:"kind"`
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	TagID           string          `json:"tagId,omitempty"`
	InventoryItemID string          `json:"inventoryItemId,omitempty"`
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans alerts out to subscriptions on a fixed number of goroutines.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *logger.Logger
}

// NewWorkerPool creates a new worker pool with a queue of queueSize alerts.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options, log *logger.Logger) *WorkerPool {
	if queueSize < 1 {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log.With("component", "notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", "worker", id)
	for {
		select {
		case alert := <-wp.jobs:
			wp.deliver(ctx, alert)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues an alert without blocking. It reports false when the queue is
// full and the alert was dropped.
func (wp *WorkerPool) Dispatch(alert Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		wp.log.Warn("alert queue full, dropping alert", "kind", alert.Kind, "tag_id", alert.TagID)
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, alert Alert) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		wp.log.Error("failed to load push subscriptions", "error", err)
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		wp.log.Error("failed to encode alert", "kind", alert.Kind, "error", err)
		return
	}

	sent := 0
	for _, sub := range subscriptions {
		if !sub.Wants(alert.Kind) {
			continue
		}
		wp.sendNotification(ctx, sub, payload)
		sent++
	}
	if sent > 0 {
		wp.log.Debug("alert delivered", "kind", alert.Kind, "subscriptions", sent)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("push subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

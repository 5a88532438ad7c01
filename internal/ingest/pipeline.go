// Package ingest turns reader batches into tag, detection and inventory updates.
package ingest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/metrics"
	"rental-rfid-backend/internal/model"
	"rental-rfid-backend/internal/notification"
	"rental-rfid-backend/internal/store"
)

// Transports label where a batch came from.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Alerter queues operator alerts without blocking.
type Alerter interface {
	Dispatch(alert notification.Alert) bool
}

// Options configures a Pipeline.
type Options struct {
	// APIKey is the shared secret readers must present.
	APIKey string
	// SystemActor is recorded as the performer of automated status changes.
	SystemActor string
	// AlertUnknownTags raises an alert when a tag is seen for the first time.
	AlertUnknownTags bool
	// AlertMovements raises an alert when a read changes an item's status.
	AlertMovements bool
}

// ReadResult is the outcome of one read. Error is set when the read was rolled back.
type ReadResult struct {
	EPC              string          `json:"epc"`
	TagID            string          `json:"tagId,omitempty"`
	Status           model.TagStatus `json:"status,omitempty"`
	IsNew            bool            `json:"isNew"`
	InventoryItemID  *string         `json:"inventoryItemId"`
	InventoryUpdated bool            `json:"inventoryUpdated"`
	Error            string          `json:"error,omitempty"`
}

// BatchResult is the response to a processed batch.
type BatchResult struct {
	Success   bool         `json:"success"`
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Results   []ReadResult `json:"results"`
}

// Pipeline processes read batches one read at a time, each in its own transaction.
type Pipeline struct {
	store  *store.Store
	opts   Options
	alerts Alerter
	log    *logger.Logger
	now    func() time.Time
}

// NewPipeline creates a pipeline. alerts may be nil.
func NewPipeline(s *store.Store, opts Options, alerts Alerter, log *logger.Logger) *Pipeline {
	if opts.SystemActor == "" {
		opts.SystemActor = model.SystemActorRFID
	}
	return &Pipeline{
		store:  s,
		opts:   opts,
		alerts: alerts,
		log:    log.With("component", "ingest"),
		now:    time.Now,
	}
}

// Authenticate compares the presented key with the configured one.
func (p *Pipeline) Authenticate(apiKey string) error {
	if p.opts.APIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(p.opts.APIKey)) != 1 {
		return apperr.ErrUnauthorized
	}
	return nil
}

// Process validates, authenticates and ingests a batch. Payload and key problems
// reject the batch before any read is touched; a failing read only fails its own result.
func (p *Pipeline) Process(ctx context.Context, transport string, b *Batch) (*BatchResult, error) {
	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	if err := b.Validate(); err != nil {
		metrics.BatchesTotal.WithLabelValues(transport, metrics.ResultRejected).Inc()
		return nil, err
	}
	reads, err := b.normalize(p.now())
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(transport, metrics.ResultRejected).Inc()
		return nil, err
	}
	if err := p.Authenticate(b.APIKey); err != nil {
		metrics.BatchesTotal.WithLabelValues(transport, metrics.ResultRejected).Inc()
		p.log.Warn("rejected batch with bad api key", "reader_id", b.ReaderID, "transport", transport)
		return nil, err
	}

	res := &BatchResult{Results: make([]ReadResult, 0, len(reads))}
	for _, r := range reads {
		rr, err := p.processRead(ctx, b, r)
		if err != nil {
			metrics.ReadsTotal.WithLabelValues("error").Inc()
			p.log.Error("failed to process read", "reader_id", b.ReaderID, "epc", r.epc, "error", err)
			rr = ReadResult{EPC: r.epc, Error: "failed to process read"}
			res.Failed++
		} else {
			metrics.ReadsTotal.WithLabelValues("ok").Inc()
		}
		res.Results = append(res.Results, rr)
	}
	res.Processed = len(res.Results)
	res.Success = res.Failed == 0

	result := metrics.ResultOK
	if !res.Success {
		result = metrics.ResultPartial
	}
	metrics.BatchesTotal.WithLabelValues(transport, result).Inc()
	p.log.Debug("batch processed", "reader_id", b.ReaderID, "transport", transport, "processed", res.Processed, "failed", res.Failed)
	return res, nil
}

// processRead runs the whole read in one transaction and dispatches alerts after commit.
func (p *Pipeline) processRead(ctx context.Context, b *Batch, r reading) (ReadResult, error) {
	var (
		rr      ReadResult
		pending []notification.Alert
	)

	err := p.store.Transaction(ctx, func(tx *gorm.DB) error {
		rr = ReadResult{EPC: r.epc}
		pending = pending[:0]

		tag, isNew, err := p.resolveTag(ctx, tx, r)
		if err != nil {
			return err
		}
		rr.TagID, rr.IsNew = tag.ID, isNew

		detection := &model.RfidDetection{
			RfidTagID:  tag.ID,
			ReaderID:   b.ReaderID,
			ReaderName: b.ReaderName,
			RSSI:       r.rssi,
			Direction:  r.direction,
			Timestamp:  r.at,
		}
		if err := p.store.Detections.Record(ctx, tx, detection); err != nil {
			return err
		}

		state := tag.State()
		rr.Status = state.Status()
		if isNew && p.opts.AlertUnknownTags {
			pending = append(pending, notification.Alert{
				Kind:  model.AlertUnknownTag,
				Title: "Unknown RFID tag",
				Body:  fmt.Sprintf("Tag %s seen by reader %s", tag.EPC, b.ReaderID),
				TagID: tag.ID,
			})
		}

		itemID, enrolled := state.InventoryItemID()
		if !enrolled {
			return nil
		}
		rr.InventoryItemID = &itemID
		if r.direction == nil {
			return nil
		}

		updated, to, err := p.applyDirection(ctx, tx, b, tag, itemID, detection)
		if err != nil {
			return err
		}
		rr.InventoryUpdated = updated
		if updated && p.opts.AlertMovements {
			pending = append(pending, notification.Alert{
				Kind:            model.AlertRfidMovement,
				Title:           "Inventory moved",
				Body:            fmt.Sprintf("Tag %s marked item %s at reader %s", tag.EPC, to, b.ReaderID),
				TagID:           tag.ID,
				InventoryItemID: itemID,
			})
		}
		return nil
	})
	if err != nil {
		return ReadResult{}, err
	}

	if rr.IsNew {
		metrics.TagsCreatedTotal.Inc()
	}
	p.dispatch(pending)
	return rr, nil
}

// resolveTag finds the tag for a read or creates it. Losing a creation race to a
// concurrent writer falls through to the existing tag.
func (p *Pipeline) resolveTag(ctx context.Context, tx *gorm.DB, r reading) (*model.RfidTag, bool, error) {
	tag, err := p.store.Tags.FindByEPC(ctx, tx, r.epc)
	if err == nil {
		return tag, false, p.store.Tags.Touch(ctx, tx, tag.ID, r.at, r.tid)
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}

	tag = &model.RfidTag{EPC: r.epc, TID: r.tid, FirstSeenAt: r.at, LastSeenAt: r.at}
	err = p.store.Tags.Create(ctx, tx, tag)
	if err == nil {
		return tag, true, nil
	}
	if !errors.Is(err, apperr.ErrConflict) {
		return nil, false, err
	}

	tag, err = p.store.Tags.FindByEPC(ctx, tx, r.epc)
	if err != nil {
		return nil, false, err
	}
	return tag, false, p.store.Tags.Touch(ctx, tx, tag.ID, r.at, r.tid)
}

// applyDirection moves the bound item to the status the read's direction implies
// and records the movement under the system actor.
func (p *Pipeline) applyDirection(ctx context.Context, tx *gorm.DB, b *Batch, tag *model.RfidTag, itemID string, d *model.RfidDetection) (bool, model.ItemStatus, error) {
	desired := model.ItemStatusOut
	if *d.Direction == model.DirectionIn {
		desired = model.ItemStatusIn
	}

	current, err := p.store.Inventory.Status(ctx, tx, itemID)
	if err != nil {
		return false, "", err
	}
	if current == desired {
		return false, current, nil
	}

	if err := p.store.Inventory.SetStatus(ctx, tx, itemID, desired); err != nil {
		return false, "", err
	}
	err = p.store.Inventory.RecordMovement(ctx, tx, &model.InventoryMovement{
		InventoryItemID: itemID,
		Type:            model.MovementRFID,
		FromStatus:      &current,
		ToStatus:        &desired,
		PerformedBy:     p.opts.SystemActor,
		Metadata: model.MovementMetadata(map[string]interface{}{
			"epc":         tag.EPC,
			"tagId":       tag.ID,
			"readerId":    b.ReaderID,
			"readerName":  b.ReaderName,
			"detectionId": d.ID,
			"direction":   d.Direction,
		}),
	})
	if err != nil {
		return false, "", err
	}

	metrics.InventoryTransitionsTotal.WithLabelValues(string(desired)).Inc()
	p.log.Info("inventory status changed by rfid", "inventory_item_id", itemID, "from", current, "to", desired, "epc", tag.EPC, "reader_id", b.ReaderID)
	return true, desired, nil
}

func (p *Pipeline) dispatch(alerts []notification.Alert) {
	if p.alerts == nil {
		return
	}
	for _, a := range alerts {
		p.alerts.Dispatch(a)
	}
}

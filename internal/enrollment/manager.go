// Package enrollment maintains the one-to-one binding between RFID tags and
// inventory items.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/model"
	"rental-rfid-backend/internal/store"
)

// Manager enrolls and unenrolls tags. Every binding change runs in one
// transaction that locks the tag row and, for enrollment, the item row.
type Manager struct {
	store *store.Store
	log   *logger.Logger
}

func NewManager(s *store.Store, log *logger.Logger) *Manager {
	return &Manager{store: s, log: log.With("component", "enrollment")}
}

// Enroll binds a tag to an inventory item and returns the updated tag.
func (m *Manager) Enroll(ctx context.Context, tagID, itemID, actor string) (*model.RfidTag, error) {
	err := m.store.Transaction(ctx, func(tx *gorm.DB) error {
		return m.enroll(ctx, tx, tagID, itemID, actor)
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("tag enrolled", "tag_id", tagID, "inventory_item_id", itemID, "actor", actor)
	return m.store.Tags.Get(ctx, tagID)
}

func (m *Manager) enroll(ctx context.Context, tx *gorm.DB, tagID, itemID, actor string) error {
	tag, err := m.store.Tags.LockByID(ctx, tx, tagID)
	if err != nil {
		return err
	}
	if tag.State().Enrolled() {
		return fmt.Errorf("%w: tag %s", apperr.ErrAlreadyEnrolled, tag.EPC)
	}

	item, err := m.store.Inventory.Lock(ctx, tx, itemID)
	if err != nil {
		return err
	}

	bound, err := m.store.Tags.FindByInventoryItem(ctx, tx, itemID)
	switch {
	case err == nil && bound.ID != tag.ID:
		return fmt.Errorf("%w: item %s carries tag %s", apperr.ErrItemAlreadyTagged, itemID, bound.EPC)
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return err
	}

	if err := m.store.Tags.SetEnrollment(ctx, tx, tag.ID, model.EnrolledState(item.ID)); err != nil {
		return err
	}

	return m.store.Inventory.RecordMovement(ctx, tx, &model.InventoryMovement{
		InventoryItemID: item.ID,
		Type:            model.MovementEnrollment,
		FromStatus:      &item.Status,
		ToStatus:        &item.Status,
		PerformedBy:     actor,
		Metadata: model.MovementMetadata(map[string]interface{}{
			"action": "enroll",
			"tagId":  tag.ID,
			"epc":    tag.EPC,
		}),
	})
}

// Unenroll clears a tag's binding. It succeeds on tags that are not enrolled.
func (m *Manager) Unenroll(ctx context.Context, tagID, actor string) (*model.RfidTag, error) {
	var released string
	err := m.store.Transaction(ctx, func(tx *gorm.DB) error {
		tag, err := m.store.Tags.LockByID(ctx, tx, tagID)
		if err != nil {
			return err
		}
		if err := m.store.Tags.SetEnrollment(ctx, tx, tag.ID, model.UnassignedState()); err != nil {
			return err
		}

		itemID, ok := tag.State().InventoryItemID()
		if !ok {
			return nil
		}
		released = itemID
		status, err := m.store.Inventory.Status(ctx, tx, itemID)
		if err != nil {
			return err
		}
		return m.store.Inventory.RecordMovement(ctx, tx, &model.InventoryMovement{
			InventoryItemID: itemID,
			Type:            model.MovementEnrollment,
			FromStatus:      &status,
			ToStatus:        &status,
			PerformedBy:     actor,
			Metadata: model.MovementMetadata(map[string]interface{}{
				"action": "unenroll",
				"tagId":  tag.ID,
				"epc":    tag.EPC,
			}),
		})
	})
	if err != nil {
		return nil, err
	}
	if released != "" {
		m.log.Info("tag unenrolled", "tag_id", tagID, "inventory_item_id", released, "actor", actor)
	}
	return m.store.Tags.Get(ctx, tagID)
}

// Register creates a tag by hand in the UNASSIGNED state and, when itemID is
// set, enrolls it in the same transaction.
func (m *Manager) Register(ctx context.Context, epc string, tid *string, itemID, actor string) (*model.RfidTag, error) {
	tag := &model.RfidTag{EPC: epc, TID: tid, FirstSeenAt: time.Now().UTC()}
	tag.SetState(model.UnassignedState())

	err := m.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := m.store.Tags.Create(ctx, tx, tag); err != nil {
			return err
		}
		if itemID == "" {
			return nil
		}
		return m.enroll(ctx, tx, tag.ID, itemID, actor)
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("tag registered", "tag_id", tag.ID, "epc", epc, "inventory_item_id", itemID, "actor", actor)
	return m.store.Tags.Get(ctx, tag.ID)
}

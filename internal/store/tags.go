package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/model"
)

// TagRegistry creates, looks up and updates tag records.
type TagRegistry struct {
	db *gorm.DB
}

// FindByEPC returns the tag with the given EPC or an error wrapping apperr.ErrNotFound.
func (r *TagRegistry) FindByEPC(ctx context.Context, tx *gorm.DB, epc string) (*model.RfidTag, error) {
	var tag model.RfidTag
	if err := conn(ctx, r.db, tx).Where("epc = ?", epc).First(&tag).Error; err != nil {
		return nil, notFound(err, "rfid tag")
	}
	return &tag, nil
}

// FindByID returns the tag with the given id or an error wrapping apperr.ErrNotFound.
func (r *TagRegistry) FindByID(ctx context.Context, tx *gorm.DB, id string) (*model.RfidTag, error) {
	var tag model.RfidTag
	if err := conn(ctx, r.db, tx).Where("id = ?", id).First(&tag).Error; err != nil {
		return nil, notFound(err, "rfid tag")
	}
	return &tag, nil
}

// LockByID loads a tag and holds a row lock on it for the rest of tx.
func (r *TagRegistry) LockByID(ctx context.Context, tx *gorm.DB, id string) (*model.RfidTag, error) {
	var tag model.RfidTag
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&tag).Error
	if err != nil {
		return nil, notFound(err, "rfid tag")
	}
	return &tag, nil
}

// FindByInventoryItem returns the tag bound to an item, if any.
func (r *TagRegistry) FindByInventoryItem(ctx context.Context, tx *gorm.DB, itemID string) (*model.RfidTag, error) {
	var tag model.RfidTag
	if err := conn(ctx, r.db, tx).Where("inventory_item_id = ?", itemID).First(&tag).Error; err != nil {
		return nil, notFound(err, "rfid tag")
	}
	return &tag, nil
}

// Create inserts a new tag. A tag that already holds the EPC makes Create fail with
// apperr.ErrConflict; the insert itself never aborts the surrounding transaction.
func (r *TagRegistry) Create(ctx context.Context, tx *gorm.DB, tag *model.RfidTag) error {
	if tag.FirstSeenAt.IsZero() {
		tag.FirstSeenAt = time.Now().UTC()
	}
	if tag.LastSeenAt.IsZero() {
		tag.LastSeenAt = tag.FirstSeenAt
	}

	res := conn(ctx, r.db, tx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "epc"}}, DoNothing: true}).
		Create(tag)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: epc %s already registered", apperr.ErrConflict, tag.EPC)
		}
		return fmt.Errorf("failed to create rfid tag %s: %w", tag.EPC, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: epc %s already registered", apperr.ErrConflict, tag.EPC)
	}
	return nil
}

// Touch records a sighting: lastSeenAt always moves to seenAt, and tid is stored
// only while the tag has none.
func (r *TagRegistry) Touch(ctx context.Context, tx *gorm.DB, id string, seenAt time.Time, tid *string) error {
	updates := map[string]interface{}{"last_seen_at": seenAt}
	if tid != nil && *tid != "" {
		updates["tid"] = gorm.Expr("CASE WHEN tid IS NULL OR tid = '' THEN ? ELSE tid END", *tid)
	}

	res := conn(ctx, r.db, tx).Model(&model.RfidTag{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to touch rfid tag %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errNotFound("rfid tag")
	}
	return nil
}

// SetEnrollment writes a tag's state. It is the only writer of the tag/item binding.
func (r *TagRegistry) SetEnrollment(ctx context.Context, tx *gorm.DB, id string, state model.TagState) error {
	var itemID interface{}
	if v, ok := state.InventoryItemID(); ok {
		itemID = v
	}

	res := conn(ctx, r.db, tx).Model(&model.RfidTag{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":            state.Status(),
		"inventory_item_id": itemID,
	})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", apperr.ErrItemAlreadyTagged, itemID)
		}
		return fmt.Errorf("failed to update enrollment of rfid tag %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errNotFound("rfid tag")
	}
	return nil
}

// TagFilter narrows a tag listing.
type TagFilter struct {
	Search string
	Status model.TagStatus
}

// List returns tags newest sighting first with their item and product preloaded.
func (r *TagRegistry) List(ctx context.Context, f TagFilter) ([]model.RfidTag, error) {
	q := r.db.WithContext(ctx).Model(&model.RfidTag{}).
		Select("rfid_tags.*").
		Preload("InventoryItem.Product")

	if f.Status != "" {
		q = q.Where("rfid_tags.status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Joins("LEFT JOIN inventory_items ON inventory_items.id = rfid_tags.inventory_item_id").
			Where("LOWER(rfid_tags.epc) LIKE ? OR LOWER(rfid_tags.tid) LIKE ? OR LOWER(inventory_items.serial_number) LIKE ? OR LOWER(inventory_items.asset_tag) LIKE ?",
				like, like, like, like)
	}

	var tags []model.RfidTag
	if err := q.Order("rfid_tags.last_seen_at DESC").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to list rfid tags: %w", err)
	}
	return tags, nil
}

// Get loads one tag with its item, product and location details.
func (r *TagRegistry) Get(ctx context.Context, id string) (*model.RfidTag, error) {
	var tag model.RfidTag
	err := r.db.WithContext(ctx).
		Preload("InventoryItem.Product").
		Where("id = ?", id).
		First(&tag).Error
	if err != nil {
		return nil, notFound(err, "rfid tag")
	}
	return &tag, nil
}

// Delete removes a tag and its detections.
func (r *TagRegistry) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rfid_tag_id = ?", id).Delete(&model.RfidDetection{}).Error; err != nil {
			return fmt.Errorf("failed to delete detections of rfid tag %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&model.RfidTag{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete rfid tag %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return errNotFound("rfid tag")
		}
		return nil
	})
}

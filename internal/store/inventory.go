package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rental-rfid-backend/internal/model"
)

// InventoryGateway reads and writes inventory item status and the movement log.
type InventoryGateway struct {
	db *gorm.DB
}

// Lock loads an item and holds a row lock on it for the rest of tx.
func (g *InventoryGateway) Lock(ctx context.Context, tx *gorm.DB, itemID string) (*model.InventoryItem, error) {
	var item model.InventoryItem
	err := conn(ctx, g.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", itemID).
		First(&item).Error
	if err != nil {
		return nil, notFound(err, "inventory item")
	}
	return &item, nil
}

// Status returns the current status of an item, locking its row inside tx.
func (g *InventoryGateway) Status(ctx context.Context, tx *gorm.DB, itemID string) (model.ItemStatus, error) {
	item, err := g.Lock(ctx, tx, itemID)
	if err != nil {
		return "", err
	}
	return item.Status, nil
}

// SetStatus overwrites the status of an item.
func (g *InventoryGateway) SetStatus(ctx context.Context, tx *gorm.DB, itemID string, status model.ItemStatus) error {
	res := conn(ctx, g.db, tx).Model(&model.InventoryItem{}).Where("id = ?", itemID).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set status of inventory item %s: %w", itemID, res.Error)
	}
	if res.RowsAffected == 0 {
		return errNotFound("inventory item")
	}
	return nil
}

// RecordMovement appends an audit record.
func (g *InventoryGateway) RecordMovement(ctx context.Context, tx *gorm.DB, m *model.InventoryMovement) error {
	if err := conn(ctx, g.db, tx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to record %s movement for item %s: %w", m.Type, m.InventoryItemID, err)
	}
	return nil
}

// MovementFilter narrows a movement listing.
type MovementFilter struct {
	Type            model.MovementType
	InventoryItemID string
}

// ListMovements returns movements newest first with the item and product preloaded.
func (g *InventoryGateway) ListMovements(ctx context.Context, f MovementFilter, page Page) ([]model.InventoryMovement, int64, error) {
	scope := func(q *gorm.DB) *gorm.DB {
		if f.Type != "" {
			q = q.Where("type = ?", f.Type)
		}
		if f.InventoryItemID != "" {
			q = q.Where("inventory_item_id = ?", f.InventoryItemID)
		}
		return q
	}

	var total int64
	if err := g.db.WithContext(ctx).Model(&model.InventoryMovement{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}

	var out []model.InventoryMovement
	q := g.db.WithContext(ctx).Model(&model.InventoryMovement{}).Scopes(scope).
		Preload("InventoryItem.Product").
		Order("created_at DESC")
	if err := page.apply(q).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list movements: %w", err)
	}
	return out, total, nil
}

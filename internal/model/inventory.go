package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ItemStatus is the availability status of a physical inventory item.
type ItemStatus string

const (
	ItemStatusIn          ItemStatus = "IN"
	ItemStatusOut         ItemStatus = "OUT"
	ItemStatusMaintenance ItemStatus = "MAINTENANCE"
	ItemStatusLost        ItemStatus = "LOST"
)

// SystemActorRFID is the performer recorded for status changes made by the RFID pipeline.
const SystemActorRFID = "system:rfid-pipeline"

// Product is the catalogue entry an inventory item is an instance of.
type Product struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SKU       string    `gorm:"uniqueIndex;size:64;not null" json:"sku"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	Brand     *string   `gorm:"size:128" json:"brand"`
	Model     *string   `gorm:"size:128" json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// InventoryItem is one serialised, trackable unit of a product.
type InventoryItem struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	ProductID    *string    `gorm:"size:36;index" json:"productId"`
	SerialNumber *string    `gorm:"size:128;index" json:"serialNumber"`
	AssetTag     *string    `gorm:"size:128;index" json:"assetTag"`
	Status       ItemStatus `gorm:"size:16;not null" json:"status"`
	Location     *string    `gorm:"size:256" json:"location"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	// Associations
	Product *Product `json:"product,omitempty"`
}

func (i *InventoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = ItemStatusIn
	}
	return nil
}

// MovementType classifies an inventory movement record.
type MovementType string

const (
	MovementCheckIn    MovementType = "CHECK_IN"
	MovementCheckOut   MovementType = "CHECK_OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementEnrollment MovementType = "ENROLLMENT"
	MovementTransfer   MovementType = "TRANSFER"
	MovementRFID       MovementType = "RFID"
)

// ParseMovementType validates a raw movement type string.
func ParseMovementType(raw string) (MovementType, bool) {
	switch t := MovementType(raw); t {
	case MovementCheckIn, MovementCheckOut, MovementAdjustment, MovementEnrollment, MovementTransfer, MovementRFID:
		return t, true
	}
	return "", false
}

// InventoryMovement is the audit record of a change to an inventory item.
type InventoryMovement struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	InventoryItemID string         `gorm:"size:36;not null;index" json:"inventoryItemId"`
	Type            MovementType   `gorm:"size:16;not null;index" json:"type"`
	FromStatus      *ItemStatus    `gorm:"size:16" json:"fromStatus"`
	ToStatus        *ItemStatus    `gorm:"size:16" json:"toStatus"`
	PerformedBy     string         `gorm:"size:128;not null" json:"performedBy"`
	Reason          *string        `gorm:"size:512" json:"reason"`
	Metadata        datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"createdAt"`

	// Associations
	InventoryItem *InventoryItem `gorm:"constraint:OnDelete:CASCADE" json:"inventoryItem,omitempty"`
}

func (m *InventoryMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MovementMetadata encodes free-form movement context. Nil values are dropped.
func MovementMetadata(fields map[string]interface{}) datatypes.JSON {
	clean := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch tv := v.(type) {
		case nil:
			continue
		case *string:
			if tv == nil {
				continue
			}
			clean[k] = *tv
		case *Direction:
			if tv == nil {
				continue
			}
			clean[k] = *tv
		default:
			clean[k] = v
		}
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

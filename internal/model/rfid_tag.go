package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TagStatus is the persisted lifecycle status of an RFID tag.
type TagStatus string

const (
	TagStatusUnknown    TagStatus = "UNKNOWN"
	TagStatusUnassigned TagStatus = "UNASSIGNED"
	TagStatusEnrolled   TagStatus = "ENROLLED"
)

// ParseTagStatus validates a raw status string.
func ParseTagStatus(raw string) (TagStatus, bool) {
	switch s := TagStatus(raw); s {
	case TagStatusUnknown, TagStatusUnassigned, TagStatusEnrolled:
		return s, true
	}
	return "", false
}

// TagState is the lifecycle state of a tag together with the data that state carries.
// The zero value is the UNKNOWN state. An enrolled state always carries its inventory item id.
type TagState struct {
	status TagStatus
	itemID string
}

// UnknownState is the state of a tag that has only been observed by a reader.
func UnknownState() TagState { return TagState{status: TagStatusUnknown} }

// UnassignedState is the state of a registered tag that is not bound to any item.
func UnassignedState() TagState { return TagState{status: TagStatusUnassigned} }

// EnrolledState binds a tag to an inventory item. itemID must not be empty.
func EnrolledState(itemID string) TagState {
	if itemID == "" {
		panic("model: enrolled tag state requires an inventory item id")
	}
	return TagState{status: TagStatusEnrolled, itemID: itemID}
}

// Status returns the status discriminator.
func (s TagState) Status() TagStatus {
	if s.status == "" {
		return TagStatusUnknown
	}
	return s.status
}

// InventoryItemID returns the bound item for an enrolled state.
func (s TagState) InventoryItemID() (string, bool) {
	return s.itemID, s.status == TagStatusEnrolled
}

// Enrolled reports whether the state binds an inventory item.
func (s TagState) Enrolled() bool { return s.status == TagStatusEnrolled }

// RfidTag is the identity and lifecycle record of one physical tag.
type RfidTag struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	EPC             string    `gorm:"uniqueIndex;size:128;not null" json:"epc"`
	TID             *string   `gorm:"size:128" json:"tid"`
	Status          TagStatus `gorm:"size:16;not null;index" json:"status"`
	InventoryItemID *string   `gorm:"size:36;uniqueIndex" json:"inventoryItemId"`
	FirstSeenAt     time.Time `gorm:"not null" json:"firstSeenAt"`
	LastSeenAt      time.Time `gorm:"not null;index" json:"lastSeenAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	// Associations
	InventoryItem *InventoryItem `gorm:"foreignKey:InventoryItemID;constraint:OnDelete:SET NULL" json:"inventoryItem,omitempty"`
}

// BeforeCreate assigns an id to tags created without one.
func (t *RfidTag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TagStatusUnknown
	}
	return nil
}

// State returns the tag's lifecycle state. A row marked ENROLLED without an item id
// reads as UNASSIGNED.
func (t *RfidTag) State() TagState {
	switch t.Status {
	case TagStatusEnrolled:
		if t.InventoryItemID != nil && *t.InventoryItemID != "" {
			return EnrolledState(*t.InventoryItemID)
		}
		return UnassignedState()
	case TagStatusUnassigned:
		return UnassignedState()
	default:
		return UnknownState()
	}
}

// SetState writes status and the bound item together.
func (t *RfidTag) SetState(s TagState) {
	t.Status = s.Status()
	if id, ok := s.InventoryItemID(); ok {
		t.InventoryItemID = &id
	} else {
		t.InventoryItemID = nil
	}
}

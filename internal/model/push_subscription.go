package model

import (
	"time"

	"gorm.io/datatypes"
)

// AlertKind names an operator alert a push subscription can receive.
type AlertKind string

const (
	AlertUnknownTag   AlertKind = "unknown_tag"
	AlertRfidMovement AlertKind = "rfid_movement"
)

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string                         `gorm:"primaryKey"`
	P256DH    string                         `gorm:"column:p256dh;not null"`
	Auth      string                         `gorm:"not null"`
	Kinds     datatypes.JSONSlice[AlertKind] `gorm:"not null"`
	CreatedAt time.Time                      `gorm:"not null"`
}

// Wants reports whether the subscription receives alerts of the given kind.
// A subscription without kinds receives everything.
func (s PushSubscription) Wants(kind AlertKind) bool {
	if len(s.Kinds) == 0 {
		return true
	}
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

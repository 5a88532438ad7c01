package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Direction is the crossing direction reported by a reader.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// RfidDetection is one immutable read event of a tag by a reader.
type RfidDetection struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	RfidTagID  string     `gorm:"size:36;not null;index" json:"rfidTagId"`
	ReaderID   string     `gorm:"size:128;not null;index:idx_detection_reader_time,priority:1" json:"readerId"`
	ReaderName *string    `gorm:"size:256" json:"readerName"`
	RSSI       *float64   `json:"rssi"`
	Direction  *Direction `gorm:"size:8;index:idx_detection_direction_time,priority:1" json:"direction"`
	Timestamp  time.Time  `gorm:"not null;index;index:idx_detection_reader_time,priority:2;index:idx_detection_direction_time,priority:2" json:"timestamp"`
	CreatedAt  time.Time  `json:"createdAt"`

	// Associations
	RfidTag *RfidTag `gorm:"constraint:OnDelete:CASCADE" json:"rfidTag,omitempty"`
}

func (d *RfidDetection) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

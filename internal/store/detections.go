package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"rental-rfid-backend/internal/model"
)

// DetectionRecorder appends and queries detection history. Detections are never
// updated after they are written.
type DetectionRecorder struct {
	db *gorm.DB
}

// Record appends one detection.
func (r *DetectionRecorder) Record(ctx context.Context, tx *gorm.DB, d *model.RfidDetection) error {
	if err := conn(ctx, r.db, tx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to record detection of tag %s: %w", d.RfidTagID, err)
	}
	return nil
}

// DetectionFilter narrows a detection listing. Zero values match everything.
type DetectionFilter struct {
	TagID     string
	ReaderID  string
	Direction *model.Direction
}

func (f DetectionFilter) apply(q *gorm.DB) *gorm.DB {
	if f.TagID != "" {
		q = q.Where("rfid_tag_id = ?", f.TagID)
	}
	if f.ReaderID != "" {
		q = q.Where("reader_id = ?", f.ReaderID)
	}
	if f.Direction != nil {
		q = q.Where("direction = ?", *f.Direction)
	}
	return q
}

// List returns matching detections newest first together with the unpaged total.
func (r *DetectionRecorder) List(ctx context.Context, f DetectionFilter, page Page) ([]model.RfidDetection, int64, error) {
	var total int64
	if err := f.apply(r.db.WithContext(ctx).Model(&model.RfidDetection{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count detections: %w", err)
	}

	var out []model.RfidDetection
	q := f.apply(r.db.WithContext(ctx).Model(&model.RfidDetection{})).
		Preload("RfidTag.InventoryItem.Product").
		Order("timestamp DESC")
	if err := page.apply(q).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list detections: %w", err)
	}
	return out, total, nil
}

// CountByTag returns the number of detections per tag id.
func (r *DetectionRecorder) CountByTag(ctx context.Context, tagIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tagIDs))
	if len(tagIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		RfidTagID string
		N         int64
	}
	err := r.db.WithContext(ctx).Model(&model.RfidDetection{}).
		Select("rfid_tag_id, COUNT(*) AS n").
		Where("rfid_tag_id IN ?", tagIDs).
		Group("rfid_tag_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count detections by tag: %w", err)
	}
	for _, row := range rows {
		counts[row.RfidTagID] = row.N
	}
	return counts, nil
}

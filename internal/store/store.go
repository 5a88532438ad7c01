package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"rental-rfid-backend/internal/apperr"
)

// Store bundles the RFID persistence components over a single database.
type Store struct {
	db         *gorm.DB
	Tags       *TagRegistry
	Detections *DetectionRecorder
	Inventory  *InventoryGateway
}

// New creates a GORM-backed store.
func New(db *gorm.DB) *Store {
	return &Store{
		db:         db,
		Tags:       &TagRegistry{db: db},
		Detections: &DetectionRecorder{db: db},
		Inventory:  &InventoryGateway{db: db},
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn in one database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// conn picks the caller's transaction when there is one.
func conn(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// notFound maps gorm's missing-row error onto apperr.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errNotFound(what)
	}
	return err
}

func errNotFound(what string) error {
	return fmt.Errorf("%s %w", what, apperr.ErrNotFound)
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q
}

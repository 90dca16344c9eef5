package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/stagesync/internal/apperr"
)

// KVEntry is one persisted key/value pair.
type KVEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (KVEntry) TableName() string {
	return "kv_entries"
}

// KVRepository is the local key-value store the app persists
// favorites, the session token and the user profile in.
type KVRepository struct {
	db *gorm.DB
}

// NewKVRepository creates the repository and migrates its table.
func NewKVRepository(db *gorm.DB) (*KVRepository, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &KVRepository{db: db}, nil
}

// Get returns the value for key and whether it exists.
func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var e KVEntry
	err := r.db.WithContext(ctx).Where(map[string]any{"key": key}).Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w: %w", key, apperr.ErrPersistence, err)
	}
	return e.Value, true, nil
}

// Set stores value under key. The write is a single upsert inside a
// transaction: either the new value lands or the old one stays.
func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}).Error
	})
	if err != nil {
		return fmt.Errorf("set %s: %w: %w", key, apperr.ErrPersistence, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	err := r.db.WithContext(ctx).Where(map[string]any{"key": key}).Delete(&KVEntry{}).Error
	if err != nil {
		return fmt.Errorf("delete %s: %w: %w", key, apperr.ErrPersistence, err)
	}
	return nil
}

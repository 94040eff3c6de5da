package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vendasb2b/cart-engine/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry is one persisted cart record in the relational backend.
type KVEntry struct {
	Key       string    `gorm:"column:kv_key;primaryKey;size:255"`
	Value     string    `gorm:"column:kv_value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (KVEntry) TableName() string {
	return "cart_kv_entries"
}

// GormKV keeps cart records in a single key/value table.
type GormKV struct {
	db *gorm.DB
}

func NewGormKV(db *gorm.DB) *GormKV {
	return &GormKV{db: db}
}

func (g *GormKV) Get(ctx context.Context, key string) (string, error) {
	var entry KVEntry
	err := g.db.WithContext(ctx).Where("kv_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		logger.Error("Failed to read cart record from database", err, map[string]interface{}{
			"key": key,
		})
		return "", err
	}
	return entry.Value, nil
}

func (g *GormKV) Set(ctx context.Context, key, value string) error {
	entry := KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kv_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"kv_value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		logger.Error("Failed to write cart record to database", err, map[string]interface{}{
			"key": key,
		})
		return err
	}
	return nil
}

func (g *GormKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := g.db.WithContext(ctx).Where("kv_key IN ?", keys).Delete(&KVEntry{}).Error; err != nil {
		logger.Error("Failed to delete cart records from database", err, map[string]interface{}{
			"keys": keys,
		})
		return err
	}
	return nil
}

var _ KV = (*GormKV)(nil)

package db

import (
	"github.com/vendasb2b/cart-engine/internal/storage"
	"github.com/vendasb2b/cart-engine/pkg/logger"
	"gorm.io/gorm"
)

// Migrate creates the cart record table.
func Migrate(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	if err := db.AutoMigrate(&storage.KVEntry{}); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"table": storage.KVEntry{}.TableName(),
	})
	return nil
}

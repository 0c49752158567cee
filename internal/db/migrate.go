package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/avdonin/pitstop/internal/models"
)

// AllModels returns the GORM models to migrate.
func AllModels() []interface{} {
	return []interface{}{
		&models.BookingRequest{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

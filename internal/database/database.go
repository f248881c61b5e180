package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stock-sim-go/internal/models"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all models. It never drops
// data; Reset exists for that.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Account{}, &models.Position{}, &models.Trade{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// Reset drops all tables and recreates them empty. Used by the admin CLI to
// start a fresh simulation round.
func Reset(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&models.Trade{}, &models.Position{}, &models.Account{}); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return AutoMigrate(db)
}

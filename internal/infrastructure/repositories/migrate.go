package repositories

import (
	"gorm.io/gorm"
	"keyguard.backend/internal/infrastructure/models"
)

// AutoMigrate creates or updates every table the engine uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

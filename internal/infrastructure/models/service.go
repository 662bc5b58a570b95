package models

import (
	"time"

	"github.com/google/uuid"
)

type Service struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Owner            uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Name             string    `gorm:"type:varchar(32);not null"`
	MaxKeys          uint32    `gorm:"not null"`
	DefaultRateLimit uint32    `gorm:"not null"`
	RateLimitWindow  int64     `gorm:"not null"`
	TotalKeysCreated uint32    `gorm:"not null;default:0"`
	ActiveKeys       uint32    `gorm:"not null;default:0"`
	CreatedAt        int64     `gorm:"autoCreateTime:false;not null"`
	Deposit          uint64    `gorm:"not null;default:0"`
	UpdatedAt        time.Time
}

func (Service) TableName() string {
	return "services"
}

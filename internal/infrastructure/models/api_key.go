package models

import (
	"time"

	"github.com/google/uuid"
)

// ApiKey is keyed by an ID derived from (service_id, key_hash). KeyHash is
// the hex SHA-256 of the raw key.
type ApiKey struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ServiceID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_api_keys_service_hash"`
	KeyHash         string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_api_keys_service_hash"`
	Label           string    `gorm:"type:varchar(32);not null"`
	Permissions     uint16    `gorm:"type:integer;not null;default:0"`
	RateLimit       uint32    `gorm:"not null"`
	RateLimitWindow int64     `gorm:"not null"`
	WindowUsage     uint32    `gorm:"not null;default:0"`
	WindowStart     int64     `gorm:"not null"`
	TotalUsage      uint64    `gorm:"not null;default:0"`
	CreatedAt       int64     `gorm:"autoCreateTime:false;not null"`
	LastUsedAt      int64     `gorm:"not null;default:0"`
	ExpiresAt       int64     `gorm:"not null;default:0;index"`
	Revoked         bool      `gorm:"not null;default:false"`
	Deposit         uint64    `gorm:"not null;default:0"`
	UpdatedAt       time.Time
}

func (ApiKey) TableName() string {
	return "api_keys"
}

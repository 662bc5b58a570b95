package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type KeyEvent struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ServiceID       uuid.UUID      `gorm:"type:uuid;not null;index"`
	EventType       string         `gorm:"type:varchar(32);not null"`
	KeyHash         string         `gorm:"type:varchar(64)"`
	PermissionNames pq.StringArray `gorm:"type:text"`
	Payload         string         `gorm:"type:text;not null"` // JSON
	OccurredAt      int64          `gorm:"not null;index"`
	CreatedAt       time.Time
}

func (KeyEvent) TableName() string {
	return "key_events"
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&Service{},
		&ApiKey{},
		&DepositAccount{},
		&KeyEvent{},
	}
}

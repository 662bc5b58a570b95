package models

import (
	"github.com/google/uuid"
)

type DepositAccount struct {
	Owner     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Reserved  uint64    `gorm:"not null;default:0"`
	Refunded  uint64    `gorm:"not null;default:0"`
	UpdatedAt int64     `gorm:"autoUpdateTime:false;not null"`
}

func (DepositAccount) TableName() string {
	return "deposit_accounts"
}

package entities

import (
	"math"
	"math/bits"

	"github.com/google/uuid"
	domainerrors "keyguard.backend/internal/domain/errors"
)

// Storage footprints in bytes, sized for the longest name/label.
const (
	// id, owner, name (len + 32), max_keys, default_rate_limit, window,
	// total_keys_created, active_keys, created_at, deposit
	ServiceRecordFootprint uint64 = 16 + 16 + 4 + MaxNameLength + 4 + 4 + 8 + 4 + 4 + 8 + 8

	// id, service, key_hash, label (len + 32), permissions, rate_limit,
	// window, window_usage, window_start, total_usage, created_at,
	// last_used_at, expires_at, revoked, deposit
	KeyRecordFootprint uint64 = 16 + 16 + 32 + 4 + MaxNameLength + 2 + 4 + 8 + 4 + 8 + 8 + 8 + 8 + 1 + 8
)

// DepositFor prices a record footprint.
func DepositFor(footprint, perByte uint64) (uint64, error) {
	hi, lo := bits.Mul64(footprint, perByte)
	if hi != 0 {
		return 0, domainerrors.ErrOverflow
	}
	return lo, nil
}

// DepositAccount tracks the refundable deposits an owner has reserved.
type DepositAccount struct {
	Owner     uuid.UUID `json:"owner"`
	Reserved  uint64    `json:"reserved"`
	Refunded  uint64    `json:"refunded"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Reserve holds amount for a newly created record.
func (a *DepositAccount) Reserve(amount uint64) error {
	if a.Reserved > math.MaxUint64-amount {
		return domainerrors.ErrOverflow
	}
	a.Reserved += amount
	return nil
}

// Release returns amount for a deleted record to the owner.
func (a *DepositAccount) Release(amount uint64) error {
	if amount > a.Reserved || a.Refunded > math.MaxUint64-amount {
		return domainerrors.ErrOverflow
	}
	a.Reserved -= amount
	a.Refunded += amount
	return nil
}

package entities

import (
	"math"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	domainerrors "keyguard.backend/internal/domain/errors"
)

const (
	MaxNameLength = 32
	MaxKeysLimit  = 10_000
)

// serviceNamespace roots the deterministic service IDs.
var serviceNamespace = uuid.MustParse("6f0d3c1e-5b8a-4e59-9a43-2f6f1b7c9d10")

// ServiceIDFor derives the service ID owned by owner. One service per identity.
func ServiceIDFor(owner uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(serviceNamespace, owner[:])
}

// Service is the tenant-level configuration owning a set of keys.
type Service struct {
	ID               uuid.UUID `json:"id"`
	Owner            uuid.UUID `json:"owner"`
	Name             string    `json:"name"`
	MaxKeys          uint32    `json:"maxKeys"`
	DefaultRateLimit uint32    `json:"defaultRateLimit"`
	RateLimitWindow  int64     `json:"rateLimitWindow"`
	TotalKeysCreated uint32    `json:"totalKeysCreated"`
	ActiveKeys       uint32    `json:"activeKeys"`
	CreatedAt        int64     `json:"createdAt"`
	Deposit          uint64    `json:"deposit"`
}

// ValidateName checks the 1-32 byte rule shared by service names and key labels.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLength {
		return domainerrors.ErrInvalidName
	}
	return nil
}

// ValidateMaxKeys checks the key capacity bounds.
func ValidateMaxKeys(maxKeys uint32) error {
	if maxKeys == 0 || maxKeys > MaxKeysLimit {
		return domainerrors.ErrInvalidConfig
	}
	return nil
}

// ValidateRateLimit rejects a zero quota.
func ValidateRateLimit(limit uint32) error {
	if limit == 0 {
		return domainerrors.ErrInvalidConfig
	}
	return nil
}

// ValidateWindow rejects window sizes other than the fixed set.
func ValidateWindow(window int64) error {
	if !IsValidWindow(window) {
		return domainerrors.ErrInvalidWindow
	}
	return nil
}

// IsOwnedBy reports whether caller controls the service.
func (s *Service) IsOwnedBy(caller uuid.UUID) bool {
	return s.Owner == caller
}

// HasCapacity reports whether another active key fits.
func (s *Service) HasCapacity() bool {
	return s.ActiveKeys < s.MaxKeys
}

// ClaimSlot counts a newly created active key.
func (s *Service) ClaimSlot() error {
	if !s.HasCapacity() {
		return domainerrors.ErrMaxKeysReached
	}
	if s.TotalKeysCreated == math.MaxUint32 {
		return domainerrors.ErrOverflow
	}
	s.TotalKeysCreated++
	s.ActiveKeys++
	return nil
}

// ReleaseSlot removes one active key from the count.
func (s *Service) ReleaseSlot() error {
	if s.ActiveKeys == 0 {
		return domainerrors.ErrOverflow
	}
	s.ActiveKeys--
	return nil
}

// SetMaxKeys applies a new capacity, refusing to drop below ActiveKeys.
func (s *Service) SetMaxKeys(maxKeys uint32) error {
	if err := ValidateMaxKeys(maxKeys); err != nil {
		return err
	}
	if maxKeys < s.ActiveKeys {
		return domainerrors.ErrInvalidConfig
	}
	s.MaxKeys = maxKeys
	return nil
}

// InitServiceInput carries the init_service arguments.
type InitServiceInput struct {
	Name             string `json:"name"`
	MaxKeys          uint32 `json:"maxKeys"`
	DefaultRateLimit uint32 `json:"defaultRateLimit"`
	RateLimitWindow  int64  `json:"rateLimitWindow"`
}

// Validate applies the init_service validation rules in order.
func (in *InitServiceInput) Validate() error {
	if err := ValidateName(in.Name); err != nil {
		return err
	}
	if err := ValidateMaxKeys(in.MaxKeys); err != nil {
		return err
	}
	if err := ValidateRateLimit(in.DefaultRateLimit); err != nil {
		return err
	}
	return ValidateWindow(in.RateLimitWindow)
}

// UpdateServiceInput carries update_service arguments. Only Valid fields
// are applied.
type UpdateServiceInput struct {
	Name             null.String `json:"name"`
	MaxKeys          null.Uint32 `json:"maxKeys"`
	DefaultRateLimit null.Uint32 `json:"defaultRateLimit"`
	RateLimitWindow  null.Int64  `json:"rateLimitWindow"`
}

// Apply validates every provided field and then writes them to s.
// On error s is left untouched.
func (in *UpdateServiceInput) Apply(s *Service) error {
	next := *s
	if in.Name.Valid {
		if err := ValidateName(in.Name.String); err != nil {
			return err
		}
		next.Name = in.Name.String
	}
	if in.MaxKeys.Valid {
		if err := next.SetMaxKeys(in.MaxKeys.Uint32); err != nil {
			return err
		}
	}
	if in.DefaultRateLimit.Valid {
		if err := ValidateRateLimit(in.DefaultRateLimit.Uint32); err != nil {
			return err
		}
		next.DefaultRateLimit = in.DefaultRateLimit.Uint32
	}
	if in.RateLimitWindow.Valid {
		if err := ValidateWindow(in.RateLimitWindow.Int64); err != nil {
			return err
		}
		next.RateLimitWindow = in.RateLimitWindow.Int64
	}
	*s = next
	return nil
}

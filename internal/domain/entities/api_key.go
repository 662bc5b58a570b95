package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"math"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	domainerrors "keyguard.backend/internal/domain/errors"
)

// KeyHash is the SHA-256 digest of a raw API key. The raw key is never stored.
type KeyHash [sha256.Size]byte

// HashSecret hashes a raw API key.
func HashSecret(secret string) KeyHash {
	return sha256.Sum256([]byte(secret))
}

// ParseKeyHash decodes a 64-char hex digest.
func ParseKeyHash(s string) (KeyHash, error) {
	var h KeyHash
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(h) {
		return h, domainerrors.ErrInvalidKeyHash
	}
	copy(h[:], raw)
	return h, nil
}

func (h KeyHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h KeyHash) IsZero() bool {
	return h == KeyHash{}
}

func (h KeyHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *KeyHash) UnmarshalText(text []byte) error {
	parsed, err := ParseKeyHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// KeyIDFor derives the record ID of a key from its service and hash, so
// existence can be tested with a primary-key lookup.
func KeyIDFor(serviceID uuid.UUID, hash KeyHash) uuid.UUID {
	return uuid.NewSHA1(serviceID, hash[:])
}

// ApiKey is the per-credential state of one key. Deposit is the amount
// reserved when the record was created and is what close refunds.
type ApiKey struct {
	ID              uuid.UUID  `json:"id"`
	ServiceID       uuid.UUID  `json:"serviceId"`
	KeyHash         KeyHash    `json:"keyHash"`
	Label           string     `json:"label"`
	Permissions     Permission `json:"permissions"`
	RateLimit       uint32     `json:"rateLimit"`
	RateLimitWindow int64      `json:"rateLimitWindow"`
	WindowUsage     uint32     `json:"windowUsage"`
	WindowStart     int64      `json:"windowStart"`
	TotalUsage      uint64     `json:"totalUsage"`
	CreatedAt       int64      `json:"createdAt"`
	LastUsedAt      int64      `json:"lastUsedAt"`
	ExpiresAt       int64      `json:"expiresAt"`
	Revoked         bool       `json:"revoked"`
	Deposit         uint64     `json:"deposit"`
}

// Window returns the key's rate window state.
func (k *ApiKey) Window() RateWindow {
	return RateWindow{
		Limit: k.RateLimit,
		Size:  k.RateLimitWindow,
		Usage: k.WindowUsage,
		Start: k.WindowStart,
	}
}

// IsExpired reports whether the key has a set expiry that has passed.
func (k *ApiKey) IsExpired(now int64) bool {
	return k.ExpiresAt != 0 && now >= k.ExpiresAt
}

// CheckLiveness fails for revoked keys, then for expired ones.
func (k *ApiKey) CheckLiveness(now int64) error {
	if k.Revoked {
		return domainerrors.ErrKeyRevoked
	}
	if k.IsExpired(now) {
		return domainerrors.ErrKeyExpired
	}
	return nil
}

// RecordUsage runs the mutating admission step and bumps the lifetime
// counter. On error k is left unchanged.
func (k *ApiKey) RecordUsage(now int64) error {
	if k.TotalUsage == math.MaxUint64 {
		return domainerrors.ErrOverflow
	}
	w := k.Window()
	if err := w.Admit(now); err != nil {
		return err
	}
	k.WindowStart = w.Start
	k.WindowUsage = w.Usage
	k.TotalUsage++
	k.LastUsedAt = now
	return nil
}

// Revoke is one-way.
func (k *ApiKey) Revoke() error {
	if k.Revoked {
		return domainerrors.ErrAlreadyRevoked
	}
	k.Revoked = true
	return nil
}

// ValidateExpiry accepts 0 (never) or a time strictly after now.
func ValidateExpiry(expiresAt, now int64) error {
	if expiresAt != 0 && expiresAt <= now {
		return domainerrors.ErrInvalidExpiry
	}
	return nil
}

// CreateKeyInput carries create_key arguments.
type CreateKeyInput struct {
	KeyHash     KeyHash     `json:"keyHash"`
	Label       string      `json:"label"`
	Permissions Permission  `json:"permissions"`
	RateLimit   null.Uint32 `json:"rateLimit"`
	ExpiresAt   null.Int64  `json:"expiresAt"`
}

// Validate applies the argument checks of create_key that need no stored
// state. An explicit expiry must lie in the future.
func (in *CreateKeyInput) Validate(now int64) error {
	if in.KeyHash.IsZero() {
		return domainerrors.ErrInvalidKeyHash
	}
	if err := ValidateName(in.Label); err != nil {
		return err
	}
	if !in.Permissions.IsValid() {
		return domainerrors.ErrInvalidPermissions
	}
	if in.RateLimit.Valid {
		if err := ValidateRateLimit(in.RateLimit.Uint32); err != nil {
			return err
		}
	}
	if in.ExpiresAt.Valid && in.ExpiresAt.Int64 <= now {
		return domainerrors.ErrInvalidExpiry
	}
	return nil
}

// NewApiKey builds a fresh key record under svc at now.
func NewApiKey(svc *Service, in *CreateKeyInput, now int64) *ApiKey {
	limit := svc.DefaultRateLimit
	if in.RateLimit.Valid {
		limit = in.RateLimit.Uint32
	}
	return &ApiKey{
		ID:              KeyIDFor(svc.ID, in.KeyHash),
		ServiceID:       svc.ID,
		KeyHash:         in.KeyHash,
		Label:           in.Label,
		Permissions:     in.Permissions,
		RateLimit:       limit,
		RateLimitWindow: svc.RateLimitWindow,
		WindowStart:     now,
		CreatedAt:       now,
		ExpiresAt:       in.ExpiresAt.Int64,
	}
}

// UpdateKeyInput carries update_key arguments. ExpiresAt set to 0 clears
// the expiry; leaving it invalid keeps the current one.
type UpdateKeyInput struct {
	Permissions null.Uint16 `json:"permissions"`
	RateLimit   null.Uint32 `json:"rateLimit"`
	ExpiresAt   null.Int64  `json:"expiresAt"`
}

// Apply validates every provided field and then writes them to k.
// On error k is left untouched.
func (in *UpdateKeyInput) Apply(k *ApiKey, now int64) error {
	if k.Revoked {
		return domainerrors.ErrKeyRevoked
	}
	next := *k
	if in.Permissions.Valid {
		perms := Permission(in.Permissions.Uint16)
		if !perms.IsValid() {
			return domainerrors.ErrInvalidPermissions
		}
		next.Permissions = perms
	}
	if in.RateLimit.Valid {
		if err := ValidateRateLimit(in.RateLimit.Uint32); err != nil {
			return err
		}
		next.RateLimit = in.RateLimit.Uint32
	}
	if in.ExpiresAt.Valid {
		if err := ValidateExpiry(in.ExpiresAt.Int64, now); err != nil {
			return err
		}
		next.ExpiresAt = in.ExpiresAt.Int64
	}
	*k = next
	return nil
}

// RotateKeyInput carries rotate_key arguments.
type RotateKeyInput struct {
	OldKeyHash KeyHash     `json:"oldKeyHash"`
	NewKeyHash KeyHash     `json:"newKeyHash"`
	NewLabel   null.String `json:"newLabel"`
}

// Successor builds the replacement for old, inheriting its configuration.
func (in *RotateKeyInput) Successor(old *ApiKey, now int64) (*ApiKey, error) {
	if in.NewKeyHash.IsZero() {
		return nil, domainerrors.ErrInvalidKeyHash
	}
	label := old.Label
	if in.NewLabel.Valid {
		if err := ValidateName(in.NewLabel.String); err != nil {
			return nil, err
		}
		label = in.NewLabel.String
	}
	return &ApiKey{
		ID:              KeyIDFor(old.ServiceID, in.NewKeyHash),
		ServiceID:       old.ServiceID,
		KeyHash:         in.NewKeyHash,
		Label:           label,
		Permissions:     old.Permissions,
		RateLimit:       old.RateLimit,
		RateLimitWindow: old.RateLimitWindow,
		WindowStart:     now,
		CreatedAt:       now,
		ExpiresAt:       old.ExpiresAt,
	}, nil
}

// KeyStatus is the read-only outcome of validate_key.
type KeyStatus struct {
	ServiceID      uuid.UUID  `json:"serviceId"`
	KeyHash        KeyHash    `json:"keyHash"`
	Permissions    Permission `json:"permissions"`
	RemainingUsage uint32     `json:"remainingUsage"`
	RateLimit      uint32     `json:"rateLimit"`
	ResetAt        int64      `json:"resetAt"`
}

// RotateKeyResult pairs the revoked key with its replacement.
type RotateKeyResult struct {
	Revoked *ApiKey `json:"revoked"`
	Created *ApiKey `json:"created"`
}

// CloseKeyResult reports a deleted key and the deposit returned for it.
type CloseKeyResult struct {
	Key      *ApiKey `json:"key"`
	Refunded uint64  `json:"refunded"`
}

// CreateKeyResponse is returned when the server generated the raw key.
// The raw key is shown once.
type CreateKeyResponse struct {
	ApiKey *ApiKey `json:"key"`
	Secret string  `json:"secret,omitempty"`
}

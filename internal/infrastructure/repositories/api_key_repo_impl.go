package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"keyguard.backend/internal/domain/entities"
	domainerrors "keyguard.backend/internal/domain/errors"
	"keyguard.backend/internal/infrastructure/models"
)

// ApiKeyRepository implements key record storage. Records are addressed by
// entities.KeyIDFor so every lookup is a primary-key read.
type ApiKeyRepository struct {
	db *gorm.DB
}

func NewApiKeyRepository(db *gorm.DB) *ApiKeyRepository {
	return &ApiKeyRepository{db: db}
}

func (r *ApiKeyRepository) Create(ctx context.Context, key *entities.ApiKey) error {
	m := r.toModel(key)
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return domainerrors.ErrKeyExists
		}
		return err
	}
	return nil
}

func (r *ApiKeyRepository) Get(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) (*entities.ApiKey, error) {
	var m models.ApiKey
	if err := readDB(ctx, r.db).Where("id = ?", entities.KeyIDFor(serviceID, hash)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrKeyNotFound
		}
		return nil, err
	}
	return r.toEntity(&m)
}

func (r *ApiKeyRepository) Exists(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.ApiKey{}).
		Where("id = ?", entities.KeyIDFor(serviceID, hash)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ApiKeyRepository) ListByService(ctx context.Context, serviceID uuid.UUID) ([]*entities.ApiKey, error) {
	var ms []models.ApiKey
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("service_id = ?", serviceID).
		Order("created_at ASC, label ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	items := make([]*entities.ApiKey, 0, len(ms))
	for i := range ms {
		e, err := r.toEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

func (r *ApiKeyRepository) Update(ctx context.Context, key *entities.ApiKey) error {
	updates := map[string]interface{}{
		"label":             key.Label,
		"permissions":       uint16(key.Permissions),
		"rate_limit":        key.RateLimit,
		"rate_limit_window": key.RateLimitWindow,
		"window_usage":      key.WindowUsage,
		"window_start":      key.WindowStart,
		"total_usage":       key.TotalUsage,
		"last_used_at":      key.LastUsedAt,
		"expires_at":        key.ExpiresAt,
		"revoked":           key.Revoked,
		"updated_at":        time.Now(),
	}

	result := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.ApiKey{}).
		Where("id = ?", key.ID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrKeyNotFound
	}
	return nil
}

// Delete removes the record permanently.
func (r *ApiKeyRepository) Delete(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) error {
	result := GetDB(ctx, r.db).WithContext(ctx).
		Delete(&models.ApiKey{}, "id = ?", entities.KeyIDFor(serviceID, hash))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrKeyNotFound
	}
	return nil
}

// CountExpiredActive counts, per service, keys past their expiry that were
// never revoked.
func (r *ApiKeyRepository) CountExpiredActive(ctx context.Context, now int64) (map[uuid.UUID]int64, error) {
	var rows []struct {
		ServiceID uuid.UUID
		Total     int64
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.ApiKey{}).
		Select("service_id, COUNT(*) AS total").
		Where("revoked = ? AND expires_at <> 0 AND expires_at <= ?", false, now).
		Group("service_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.ServiceID] = row.Total
	}
	return counts, nil
}

func (r *ApiKeyRepository) toEntity(m *models.ApiKey) (*entities.ApiKey, error) {
	hash, err := entities.ParseKeyHash(m.KeyHash)
	if err != nil {
		return nil, err
	}
	return &entities.ApiKey{
		ID:              m.ID,
		ServiceID:       m.ServiceID,
		KeyHash:         hash,
		Label:           m.Label,
		Permissions:     entities.Permission(m.Permissions),
		RateLimit:       m.RateLimit,
		RateLimitWindow: m.RateLimitWindow,
		WindowUsage:     m.WindowUsage,
		WindowStart:     m.WindowStart,
		TotalUsage:      m.TotalUsage,
		CreatedAt:       m.CreatedAt,
		LastUsedAt:      m.LastUsedAt,
		ExpiresAt:       m.ExpiresAt,
		Revoked:         m.Revoked,
		Deposit:         m.Deposit,
	}, nil
}

func (r *ApiKeyRepository) toModel(e *entities.ApiKey) *models.ApiKey {
	return &models.ApiKey{
		ID:              entities.KeyIDFor(e.ServiceID, e.KeyHash),
		ServiceID:       e.ServiceID,
		KeyHash:         e.KeyHash.String(),
		Label:           e.Label,
		Permissions:     uint16(e.Permissions),
		RateLimit:       e.RateLimit,
		RateLimitWindow: e.RateLimitWindow,
		WindowUsage:     e.WindowUsage,
		WindowStart:     e.WindowStart,
		TotalUsage:      e.TotalUsage,
		CreatedAt:       e.CreatedAt,
		LastUsedAt:      e.LastUsedAt,
		ExpiresAt:       e.ExpiresAt,
		Revoked:         e.Revoked,
		Deposit:         e.Deposit,
	}
}

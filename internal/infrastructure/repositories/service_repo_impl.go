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

// ServiceRepository implements service record storage
type ServiceRepository struct {
	db *gorm.DB
}

// NewServiceRepository creates a new service repository
func NewServiceRepository(db *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

func (r *ServiceRepository) Create(ctx context.Context, svc *entities.Service) error {
	m := r.toModel(svc)
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return domainerrors.ErrServiceExists
		}
		return err
	}
	return nil
}

func (r *ServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Service, error) {
	var m models.Service
	if err := readDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrServiceNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

func (r *ServiceRepository) GetByOwner(ctx context.Context, owner uuid.UUID) (*entities.Service, error) {
	var m models.Service
	if err := readDB(ctx, r.db).Where("owner = ?", owner).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrServiceNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

func (r *ServiceRepository) List(ctx context.Context) ([]*entities.Service, error) {
	var ms []models.Service
	if err := GetDB(ctx, r.db).WithContext(ctx).Order("created_at ASC").Find(&ms).Error; err != nil {
		return nil, err
	}

	items := make([]*entities.Service, 0, len(ms))
	for i := range ms {
		items = append(items, r.toEntity(&ms[i]))
	}
	return items, nil
}

func (r *ServiceRepository) Update(ctx context.Context, svc *entities.Service) error {
	updates := map[string]interface{}{
		"name":               svc.Name,
		"max_keys":           svc.MaxKeys,
		"default_rate_limit": svc.DefaultRateLimit,
		"rate_limit_window":  svc.RateLimitWindow,
		"total_keys_created": svc.TotalKeysCreated,
		"active_keys":        svc.ActiveKeys,
		"updated_at":         time.Now(),
	}

	result := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.Service{}).
		Where("id = ?", svc.ID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrServiceNotFound
	}
	return nil
}

func (r *ServiceRepository) toEntity(m *models.Service) *entities.Service {
	return &entities.Service{
		ID:               m.ID,
		Owner:            m.Owner,
		Name:             m.Name,
		MaxKeys:          m.MaxKeys,
		DefaultRateLimit: m.DefaultRateLimit,
		RateLimitWindow:  m.RateLimitWindow,
		TotalKeysCreated: m.TotalKeysCreated,
		ActiveKeys:       m.ActiveKeys,
		CreatedAt:        m.CreatedAt,
		Deposit:          m.Deposit,
	}
}

func (r *ServiceRepository) toModel(e *entities.Service) *models.Service {
	return &models.Service{
		ID:               e.ID,
		Owner:            e.Owner,
		Name:             e.Name,
		MaxKeys:          e.MaxKeys,
		DefaultRateLimit: e.DefaultRateLimit,
		RateLimitWindow:  e.RateLimitWindow,
		TotalKeysCreated: e.TotalKeysCreated,
		ActiveKeys:       e.ActiveKeys,
		CreatedAt:        e.CreatedAt,
		Deposit:          e.Deposit,
	}
}

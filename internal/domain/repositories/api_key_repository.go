package repositories

import (
	"context"

	"github.com/google/uuid"
	"keyguard.backend/internal/domain/entities"
)

// ApiKeyRepository stores key records addressed by (service, key hash).
type ApiKeyRepository interface {
	Create(ctx context.Context, key *entities.ApiKey) error
	Get(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) (*entities.ApiKey, error)
	Exists(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) (bool, error)
	ListByService(ctx context.Context, serviceID uuid.UUID) ([]*entities.ApiKey, error)
	Update(ctx context.Context, key *entities.ApiKey) error
	Delete(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) error
	CountExpiredActive(ctx context.Context, now int64) (map[uuid.UUID]int64, error)
}

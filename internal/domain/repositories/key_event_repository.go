package repositories

import (
	"context"

	"github.com/google/uuid"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/pkg/utils"
)

// KeyEventRepository persists the audit trail of engine events.
type KeyEventRepository interface {
	Append(ctx context.Context, event entities.Event) error
	ListByService(ctx context.Context, serviceID uuid.UUID, pagination utils.PaginationParams) ([]entities.Event, int64, error)
}

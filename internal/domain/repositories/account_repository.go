package repositories

import (
	"context"

	"github.com/google/uuid"
	"keyguard.backend/internal/domain/entities"
)

// AccountRepository defines owner account data operations
type AccountRepository interface {
	Create(ctx context.Context, account *entities.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
	GetByEmail(ctx context.Context, email string) (*entities.Account, error)
}

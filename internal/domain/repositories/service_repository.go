package repositories

import (
	"context"

	"github.com/google/uuid"
	"keyguard.backend/internal/domain/entities"
)

// ServiceRepository stores service records, one per owner.
type ServiceRepository interface {
	Create(ctx context.Context, svc *entities.Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Service, error)
	GetByOwner(ctx context.Context, owner uuid.UUID) (*entities.Service, error)
	Update(ctx context.Context, svc *entities.Service) error
	List(ctx context.Context) ([]*entities.Service, error)
}

// DepositRepository stores per-owner deposit accounts.
type DepositRepository interface {
	// Get returns the owner's account, or a zero account if none exists yet.
	Get(ctx context.Context, owner uuid.UUID) (*entities.DepositAccount, error)
	Save(ctx context.Context, account *entities.DepositAccount) error
}

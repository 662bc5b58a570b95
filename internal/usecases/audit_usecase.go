package usecases

import (
	"context"

	"github.com/google/uuid"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/domain/repositories"
	"keyguard.backend/pkg/utils"
)

// AuditUsecase reads back the event trail of the caller's service.
type AuditUsecase struct {
	serviceRepo repositories.ServiceRepository
	eventRepo   repositories.KeyEventRepository
}

func NewAuditUsecase(serviceRepo repositories.ServiceRepository, eventRepo repositories.KeyEventRepository) *AuditUsecase {
	return &AuditUsecase{serviceRepo: serviceRepo, eventRepo: eventRepo}
}

// ListEvents returns one page of the caller's service events, newest first.
func (u *AuditUsecase) ListEvents(ctx context.Context, caller uuid.UUID, pagination utils.PaginationParams) ([]entities.Event, utils.PaginationMeta, error) {
	svc, err := u.serviceRepo.GetByOwner(ctx, caller)
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	items, total, err := u.eventRepo.ListByService(ctx, svc.ID, pagination)
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return items, utils.CalculateMeta(total, pagination), nil
}

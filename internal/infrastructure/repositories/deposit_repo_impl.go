package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/infrastructure/models"
)

// DepositRepository implements per-owner deposit accounts
type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Get returns a zero account for owners that never reserved anything.
func (r *DepositRepository) Get(ctx context.Context, owner uuid.UUID) (*entities.DepositAccount, error) {
	var m models.DepositAccount
	if err := readDB(ctx, r.db).Where("owner = ?", owner).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &entities.DepositAccount{Owner: owner}, nil
		}
		return nil, err
	}
	return &entities.DepositAccount{
		Owner:     m.Owner,
		Reserved:  m.Reserved,
		Refunded:  m.Refunded,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// Save upserts the account.
func (r *DepositRepository) Save(ctx context.Context, account *entities.DepositAccount) error {
	m := &models.DepositAccount{
		Owner:     account.Owner,
		Reserved:  account.Reserved,
		Refunded:  account.Refunded,
		UpdatedAt: account.UpdatedAt,
	}
	return GetDB(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}},
			DoUpdates: clause.AssignmentColumns([]string{"reserved", "refunded", "updated_at"}),
		}).
		Create(m).Error
}

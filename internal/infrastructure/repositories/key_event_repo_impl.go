package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/infrastructure/models"
	"keyguard.backend/pkg/utils"
)

// KeyEventRepository stores the audit trail. The full event is kept as a
// JSON payload; the permission names are denormalised for querying.
type KeyEventRepository struct {
	db *gorm.DB
}

func NewKeyEventRepository(db *gorm.DB) *KeyEventRepository {
	return &KeyEventRepository{db: db}
}

func (r *KeyEventRepository) Append(ctx context.Context, event entities.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	m := &models.KeyEvent{
		ID:              utils.NewOrderedID(),
		ServiceID:       event.ServiceID,
		EventType:       string(event.Type),
		PermissionNames: pq.StringArray(eventPermissions(event).Names()),
		Payload:         string(payload),
		OccurredAt:      event.OccurredAt,
		CreatedAt:       time.Now(),
	}
	if event.KeyHash != nil {
		m.KeyHash = event.KeyHash.String()
	}

	return GetDB(ctx, r.db).WithContext(ctx).Create(m).Error
}

// ListByService returns one page of events, newest first, and the total
// count. A zero limit returns every event.
func (r *KeyEventRepository) ListByService(ctx context.Context, serviceID uuid.UUID, pagination utils.PaginationParams) ([]entities.Event, int64, error) {
	query := GetDB(ctx, r.db).WithContext(ctx).Model(&models.KeyEvent{}).Where("service_id = ?", serviceID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.KeyEvent
	query = query.Order("occurred_at DESC, id DESC")
	if pagination.Limit > 0 {
		query = query.Limit(pagination.Limit).Offset(pagination.Offset())
	}
	if err := query.Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	items := make([]entities.Event, 0, len(ms))
	for i := range ms {
		var e entities.Event
		if err := json.Unmarshal([]byte(ms[i].Payload), &e); err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}

func eventPermissions(e entities.Event) entities.Permission {
	switch {
	case e.Required != 0:
		return e.Required
	case e.Key != nil:
		return e.Key.Permissions
	default:
		return 0
	}
}

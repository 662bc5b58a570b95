package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"keyguard.backend/internal/domain/entities"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "open sqlite")
	require.NoError(t, AutoMigrate(db), "migrate")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func newTestService(owner uuid.UUID) *entities.Service {
	return &entities.Service{
		ID:               entities.ServiceIDFor(owner),
		Owner:            owner,
		Name:             "svc",
		MaxKeys:          10,
		DefaultRateLimit: 100,
		RateLimitWindow:  entities.WindowOneHour,
		CreatedAt:        1_700_000_000,
		Deposit:          1_080,
	}
}

func newTestKey(serviceID uuid.UUID, secret string) *entities.ApiKey {
	hash := entities.HashSecret(secret)
	return &entities.ApiKey{
		ID:              entities.KeyIDFor(serviceID, hash),
		ServiceID:       serviceID,
		KeyHash:         hash,
		Label:           "default",
		Permissions:     entities.PermissionRead | entities.PermissionWrite,
		RateLimit:       100,
		RateLimitWindow: entities.WindowOneHour,
		WindowStart:     1_700_000_000,
		CreatedAt:       1_700_000_000,
		Deposit:         1_580,
	}
}

package usecases_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"keyguard.backend/internal/domain/entities"
	domainerrors "keyguard.backend/internal/domain/errors"
	"keyguard.backend/internal/infrastructure/repositories"
	"keyguard.backend/internal/usecases"
)

const (
	testDepositPerByte = 10
	testEpoch          = int64(1_700_000_000)
)

type lifecycleHarness struct {
	uc       *usecases.LifecycleUsecase
	db       *gorm.DB
	services *repositories.ServiceRepository
	keys     *repositories.ApiKeyRepository
	deposits *repositories.DepositRepository
	sink     *recordingSink
	now      int64
	owner    uuid.UUID
}

func newLifecycleHarness(t *testing.T) *lifecycleHarness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, repositories.AutoMigrate(db))

	h := &lifecycleHarness{
		db:       db,
		services: repositories.NewServiceRepository(db),
		keys:     repositories.NewApiKeyRepository(db),
		deposits: repositories.NewDepositRepository(db),
		sink:     &recordingSink{},
		now:      testEpoch,
		owner:    uuid.New(),
	}
	h.uc = h.usecaseAt(testDepositPerByte)
	return h
}

// usecaseAt builds a controller over the same store with another deposit price.
func (h *lifecycleHarness) usecaseAt(perByte uint64) *usecases.LifecycleUsecase {
	return usecases.NewLifecycleUsecase(h.services, h.keys, h.deposits, repositories.NewUnitOfWork(h.db), h.sink, perByte).
		WithClock(func() time.Time { return time.Unix(h.now, 0) })
}

func (h *lifecycleHarness) initService(t *testing.T, maxKeys, limit uint32) *entities.Service {
	t.Helper()
	svc, err := h.uc.InitService(context.Background(), h.owner, &entities.InitServiceInput{
		Name:             "svc",
		MaxKeys:          maxKeys,
		DefaultRateLimit: limit,
		RateLimitWindow:  entities.WindowOneHour,
	})
	require.NoError(t, err)
	return svc
}

func (h *lifecycleHarness) createKey(t *testing.T, secret string, perms entities.Permission) *entities.ApiKey {
	t.Helper()
	key, err := h.uc.CreateKey(context.Background(), h.owner, &entities.CreateKeyInput{
		KeyHash:     entities.HashSecret(secret),
		Label:       secret,
		Permissions: perms,
	})
	require.NoError(t, err)
	return key
}

func (h *lifecycleHarness) service(t *testing.T) *entities.Service {
	t.Helper()
	svc, err := h.uc.GetService(context.Background(), h.owner)
	require.NoError(t, err)
	return svc
}

func (h *lifecycleHarness) key(t *testing.T, secret string) *entities.ApiKey {
	t.Helper()
	key, err := h.uc.GetKey(context.Background(), h.owner, entities.HashSecret(secret))
	require.NoError(t, err)
	return key
}

func TestLifecycle_InitService(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()

	svc := h.initService(t, 10, 100)
	assert.Equal(t, entities.ServiceIDFor(h.owner), svc.ID)
	assert.Zero(t, svc.ActiveKeys)
	assert.Zero(t, svc.TotalKeysCreated)
	assert.Equal(t, testEpoch, svc.CreatedAt)

	_, err := h.uc.InitService(ctx, h.owner, &entities.InitServiceInput{Name: "again", MaxKeys: 1, DefaultRateLimit: 1, RateLimitWindow: 60})
	require.ErrorIs(t, err, domainerrors.ErrServiceExists)

	_, err = h.uc.InitService(ctx, uuid.New(), &entities.InitServiceInput{Name: "x", MaxKeys: 1, DefaultRateLimit: 1, RateLimitWindow: 1})
	require.ErrorIs(t, err, domainerrors.ErrInvalidWindow)

	_, err = h.uc.InitService(ctx, uuid.Nil, &entities.InitServiceInput{Name: "x", MaxKeys: 1, DefaultRateLimit: 1, RateLimitWindow: 60})
	require.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	acct, err := h.deposits.Get(ctx, h.owner)
	require.NoError(t, err)
	assert.Equal(t, entities.ServiceRecordFootprint*testDepositPerByte, acct.Reserved)

	assert.Equal(t, []entities.EventType{entities.EventServiceCreated}, h.sink.types())
}

func TestLifecycle_NameBoundaries(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()

	_, err := h.uc.InitService(ctx, h.owner, &entities.InitServiceInput{Name: strings.Repeat("n", 33), MaxKeys: 5, DefaultRateLimit: 5, RateLimitWindow: 60})
	require.ErrorIs(t, err, domainerrors.ErrInvalidName)

	_, err = h.uc.InitService(ctx, h.owner, &entities.InitServiceInput{Name: strings.Repeat("n", 32), MaxKeys: 5, DefaultRateLimit: 5, RateLimitWindow: 60})
	require.NoError(t, err)

	_, err = h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("a"), Label: strings.Repeat("l", 33)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidName)

	_, err = h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("a"), Label: strings.Repeat("l", 32)})
	require.NoError(t, err)

	_, err = h.uc.UpdateService(ctx, h.owner, &entities.UpdateServiceInput{Name: null.StringFrom(strings.Repeat("n", 33))})
	require.ErrorIs(t, err, domainerrors.ErrInvalidName)
}

func TestLifecycle_UpdateService(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	h.createKey(t, "a", entities.PermissionRead)
	h.createKey(t, "b", entities.PermissionRead)

	_, err := h.uc.UpdateService(ctx, h.owner, &entities.UpdateServiceInput{MaxKeys: null.Uint32From(1)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidConfig)

	svc, err := h.uc.UpdateService(ctx, h.owner, &entities.UpdateServiceInput{
		MaxKeys:          null.Uint32From(2),
		DefaultRateLimit: null.Uint32From(99),
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), svc.MaxKeys)
	assert.Equal(t, uint32(99), svc.DefaultRateLimit)
	assert.Equal(t, "svc", svc.Name)
	assert.Equal(t, entities.WindowOneHour, svc.RateLimitWindow)

	stored := h.service(t)
	assert.Equal(t, uint32(2), stored.MaxKeys)
	assert.Equal(t, uint32(2), stored.ActiveKeys)

	_, err = h.uc.UpdateService(ctx, uuid.New(), &entities.UpdateServiceInput{})
	require.ErrorIs(t, err, domainerrors.ErrServiceNotFound)
}

func TestLifecycle_CreateKey(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	svc := h.initService(t, 5, 40)

	key := h.createKey(t, "a", entities.PermissionRead|entities.PermissionWrite)
	assert.Equal(t, uint32(40), key.RateLimit)
	assert.Equal(t, entities.WindowOneHour, key.RateLimitWindow)
	assert.Equal(t, svc.ID, key.ServiceID)
	assert.Zero(t, key.ExpiresAt)

	_, err := h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("a"), Label: "dup"})
	require.ErrorIs(t, err, domainerrors.ErrKeyExists)

	_, err = h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("b"), Label: "b", RateLimit: null.Uint32From(0)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidConfig)

	_, err = h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("b"), Label: "b", ExpiresAt: null.Int64From(testEpoch)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidExpiry)

	_, err = h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("b"), Label: "b", Permissions: 16})
	require.ErrorIs(t, err, domainerrors.ErrInvalidPermissions)

	custom, err := h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{
		KeyHash:   entities.HashSecret("b"),
		Label:     "b",
		RateLimit: null.Uint32From(7),
		ExpiresAt: null.Int64From(testEpoch + 60),
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), custom.RateLimit)
	assert.Equal(t, testEpoch+60, custom.ExpiresAt)

	stored := h.service(t)
	assert.Equal(t, uint32(2), stored.ActiveKeys)
	assert.Equal(t, uint32(2), stored.TotalKeysCreated)

	acct, err := h.deposits.Get(ctx, h.owner)
	require.NoError(t, err)
	assert.Equal(t, (entities.ServiceRecordFootprint+2*entities.KeyRecordFootprint)*testDepositPerByte, acct.Reserved)

	// failed creates leave no partial state
	keys, err := h.uc.ListKeys(ctx, h.owner)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestLifecycle_CapacityBoundary(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 2, 10)

	h.createKey(t, "a", entities.PermissionRead)
	h.createKey(t, "b", entities.PermissionRead)

	_, err := h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("c"), Label: "c"})
	require.ErrorIs(t, err, domainerrors.ErrMaxKeysReached)

	_, err = h.uc.RevokeKey(ctx, h.owner, entities.HashSecret("a"))
	require.NoError(t, err)

	h.createKey(t, "c", entities.PermissionRead)
	svc := h.service(t)
	assert.Equal(t, uint32(2), svc.ActiveKeys)
	assert.Equal(t, uint32(3), svc.TotalKeysCreated)
}

func TestLifecycle_ActiveKeysInvariant(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 3, 10)

	check := func() {
		svc := h.service(t)
		keys, err := h.uc.ListKeys(ctx, h.owner)
		require.NoError(t, err)
		live := uint32(0)
		for _, k := range keys {
			if !k.Revoked {
				live++
			}
		}
		assert.LessOrEqual(t, svc.ActiveKeys, svc.MaxKeys)
		assert.Equal(t, live, svc.ActiveKeys)
	}

	secrets := []string{"a", "b", "c", "d"}
	for _, s := range secrets {
		_, _ = h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret(s), Label: s})
		check()
	}
	_, _ = h.uc.RevokeKey(ctx, h.owner, entities.HashSecret("a"))
	check()
	_, _ = h.uc.RevokeKey(ctx, h.owner, entities.HashSecret("a"))
	check()
	_, _ = h.uc.CloseKey(ctx, h.owner, entities.HashSecret("a"))
	check()
	_, _ = h.uc.CloseKey(ctx, h.owner, entities.HashSecret("b"))
	check()
	_, _ = h.uc.RotateKey(ctx, h.owner, &entities.RotateKeyInput{OldKeyHash: entities.HashSecret("c"), NewKeyHash: entities.HashSecret("e")})
	check()
	_, _ = h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("f"), Label: "f"})
	check()
	_, _ = h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{KeyHash: entities.HashSecret("g"), Label: "g"})
	check()
}

func TestLifecycle_RevokeIsNotIdempotent(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	h.createKey(t, "a", entities.PermissionRead)

	revoked, err := h.uc.RevokeKey(ctx, h.owner, entities.HashSecret("a"))
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)
	assert.Equal(t, uint32(0), h.service(t).ActiveKeys)

	_, err = h.uc.RevokeKey(ctx, h.owner, entities.HashSecret("a"))
	require.ErrorIs(t, err, domainerrors.ErrAlreadyRevoked)
	assert.Equal(t, uint32(0), h.service(t).ActiveKeys)

	_, err = h.uc.ValidateKey(ctx, entities.ServiceIDFor(h.owner), entities.HashSecret("a"))
	require.ErrorIs(t, err, domainerrors.ErrKeyRevoked)

	_, err = h.uc.RevokeKey(ctx, h.owner, entities.HashSecret("missing"))
	require.ErrorIs(t, err, domainerrors.ErrKeyNotFound)
}

func TestLifecycle_PermissionRoundTrip(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 20, 10)
	serviceID := entities.ServiceIDFor(h.owner)

	for p := entities.Permission(0); p <= entities.PermissionAll; p++ {
		secret := fmt.Sprintf("perm-%d", p)
		h.createKey(t, secret, p)
		hash := entities.HashSecret(secret)

		err := h.uc.CheckPermission(ctx, serviceID, hash, p)
		if p == 0 {
			require.ErrorIs(t, err, domainerrors.ErrInvalidPermissions)
		} else {
			require.NoError(t, err, "mask %s", p)
		}

		require.ErrorIs(t, h.uc.CheckPermission(ctx, serviceID, hash, 0), domainerrors.ErrInvalidPermissions)
		require.ErrorIs(t, h.uc.CheckPermission(ctx, serviceID, hash, 16), domainerrors.ErrInvalidPermissions)
	}

	readOnly := entities.HashSecret(fmt.Sprintf("perm-%d", entities.PermissionRead))
	require.ErrorIs(t, h.uc.CheckPermission(ctx, serviceID, readOnly, entities.PermissionAdmin), domainerrors.ErrInsufficientPermissions)
}

func TestLifecycle_WindowBoundary(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 3)
	h.createKey(t, "a", entities.PermissionRead)
	hash := entities.HashSecret("a")

	for i := 0; i < 3; i++ {
		status, err := h.uc.RecordUsage(ctx, h.owner, hash)
		require.NoError(t, err)
		assert.Equal(t, uint32(2-i), status.RemainingUsage)
	}

	h.now += 10
	_, err := h.uc.RecordUsage(ctx, h.owner, hash)
	require.ErrorIs(t, err, domainerrors.ErrRateLimitExceeded)

	key := h.key(t, "a")
	assert.Equal(t, uint32(3), key.WindowUsage)
	assert.Equal(t, uint64(3), key.TotalUsage)
	assert.Equal(t, testEpoch, key.LastUsedAt)

	_, err = h.uc.ValidateKey(ctx, entities.ServiceIDFor(h.owner), hash)
	require.ErrorIs(t, err, domainerrors.ErrRateLimitExceeded)

	// permission checks ignore the window
	require.NoError(t, h.uc.CheckPermission(ctx, entities.ServiceIDFor(h.owner), hash, entities.PermissionRead))

	// next window
	h.now = testEpoch + entities.WindowOneHour
	status, err := h.uc.RecordUsage(ctx, h.owner, hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), status.RemainingUsage)
	assert.Equal(t, h.now+entities.WindowOneHour, status.ResetAt)

	key = h.key(t, "a")
	assert.Equal(t, uint32(1), key.WindowUsage)
	assert.Equal(t, h.now, key.WindowStart)
	assert.Equal(t, uint64(4), key.TotalUsage)
}

func TestLifecycle_ValidateKeyDoesNotMutate(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 2)
	h.createKey(t, "a", entities.PermissionWrite)
	hash := entities.HashSecret("a")

	_, err := h.uc.RecordUsage(ctx, h.owner, hash)
	require.NoError(t, err)
	_, err = h.uc.RecordUsage(ctx, h.owner, hash)
	require.NoError(t, err)

	// window elapsed: validation sees an empty window but writes nothing
	h.now = testEpoch + entities.WindowOneHour + 5
	status, err := h.uc.ValidateKey(ctx, entities.ServiceIDFor(h.owner), hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), status.RemainingUsage)
	assert.Equal(t, entities.PermissionWrite, status.Permissions)

	key := h.key(t, "a")
	assert.Equal(t, uint32(2), key.WindowUsage)
	assert.Equal(t, testEpoch, key.WindowStart)

	_, err = h.uc.ValidateKey(ctx, uuid.New(), hash)
	require.ErrorIs(t, err, domainerrors.ErrKeyNotFound)
}

func TestLifecycle_Expiry(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	serviceID := entities.ServiceIDFor(h.owner)
	hash := entities.HashSecret("a")

	_, err := h.uc.CreateKey(ctx, h.owner, &entities.CreateKeyInput{
		KeyHash:     hash,
		Label:       "a",
		Permissions: entities.PermissionRead,
		ExpiresAt:   null.Int64From(testEpoch + 100),
	})
	require.NoError(t, err)

	h.now = testEpoch + 100
	_, err = h.uc.ValidateKey(ctx, serviceID, hash)
	require.ErrorIs(t, err, domainerrors.ErrKeyExpired)
	require.ErrorIs(t, h.uc.CheckPermission(ctx, serviceID, hash, entities.PermissionRead), domainerrors.ErrKeyExpired)
	_, err = h.uc.RecordUsage(ctx, h.owner, hash)
	require.ErrorIs(t, err, domainerrors.ErrKeyExpired)

	// omitted expiry leaves it in place
	_, err = h.uc.UpdateKey(ctx, h.owner, hash, &entities.UpdateKeyInput{RateLimit: null.Uint32From(50)})
	require.NoError(t, err)
	assert.Equal(t, testEpoch+100, h.key(t, "a").ExpiresAt)

	// explicit zero clears it
	updated, err := h.uc.UpdateKey(ctx, h.owner, hash, &entities.UpdateKeyInput{ExpiresAt: null.Int64From(0)})
	require.NoError(t, err)
	assert.Zero(t, updated.ExpiresAt)
	assert.Equal(t, uint32(50), updated.RateLimit)

	_, err = h.uc.ValidateKey(ctx, serviceID, hash)
	require.NoError(t, err)

	_, err = h.uc.UpdateKey(ctx, h.owner, hash, &entities.UpdateKeyInput{ExpiresAt: null.Int64From(h.now)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidExpiry)
}

func TestLifecycle_UpdateKey(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	h.createKey(t, "a", entities.PermissionRead)
	hash := entities.HashSecret("a")

	updated, err := h.uc.UpdateKey(ctx, h.owner, hash, &entities.UpdateKeyInput{Permissions: null.Uint16From(uint16(entities.PermissionAll))})
	require.NoError(t, err)
	assert.Equal(t, entities.PermissionAll, updated.Permissions)

	_, err = h.uc.UpdateKey(ctx, h.owner, hash, &entities.UpdateKeyInput{RateLimit: null.Uint32From(0)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidConfig)

	_, err = h.uc.UpdateKey(ctx, h.owner, hash, &entities.UpdateKeyInput{Permissions: null.Uint16From(math.MaxUint16)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidPermissions)

	_, err = h.uc.RevokeKey(ctx, h.owner, hash)
	require.NoError(t, err)
	_, err = h.uc.UpdateKey(ctx, h.owner, hash, &entities.UpdateKeyInput{RateLimit: null.Uint32From(5)})
	require.ErrorIs(t, err, domainerrors.ErrKeyRevoked)

	h.sink.reset()
	_, err = h.uc.UpdateKey(ctx, h.owner, entities.HashSecret("missing"), &entities.UpdateKeyInput{})
	require.ErrorIs(t, err, domainerrors.ErrKeyNotFound)
	assert.Empty(t, h.sink.types())
}

func TestLifecycle_RotateAtFullCapacity(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 2, 10)
	h.createKey(t, "a", entities.PermissionRead|entities.PermissionDelete)
	h.createKey(t, "b", entities.PermissionRead)

	_, err := h.uc.UpdateKey(ctx, h.owner, entities.HashSecret("a"), &entities.UpdateKeyInput{
		RateLimit: null.Uint32From(33),
		ExpiresAt: null.Int64From(testEpoch + 500),
	})
	require.NoError(t, err)
	h.sink.reset()

	result, err := h.uc.RotateKey(ctx, h.owner, &entities.RotateKeyInput{
		OldKeyHash: entities.HashSecret("a"),
		NewKeyHash: entities.HashSecret("a2"),
	})
	require.NoError(t, err)
	assert.True(t, result.Revoked.Revoked)
	assert.False(t, result.Created.Revoked)
	assert.Equal(t, "a", result.Created.Label)
	assert.Equal(t, entities.PermissionRead|entities.PermissionDelete, result.Created.Permissions)
	assert.Equal(t, uint32(33), result.Created.RateLimit)
	assert.Equal(t, testEpoch+500, result.Created.ExpiresAt)

	svc := h.service(t)
	assert.Equal(t, uint32(2), svc.ActiveKeys)
	assert.Equal(t, uint32(3), svc.TotalKeysCreated)
	assert.True(t, h.key(t, "a").Revoked)
	assert.Equal(t, []entities.EventType{entities.EventKeyRevoked, entities.EventKeyCreated}, h.sink.types())

	renamed, err := h.uc.RotateKey(ctx, h.owner, &entities.RotateKeyInput{
		OldKeyHash: entities.HashSecret("b"),
		NewKeyHash: entities.HashSecret("b2"),
		NewLabel:   null.StringFrom("renamed"),
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Created.Label)
}

func TestLifecycle_RotateFailuresAreAtomic(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	h.createKey(t, "a", entities.PermissionRead)
	h.createKey(t, "b", entities.PermissionRead)

	// new hash already registered: old key must stay live
	_, err := h.uc.RotateKey(ctx, h.owner, &entities.RotateKeyInput{OldKeyHash: entities.HashSecret("a"), NewKeyHash: entities.HashSecret("b")})
	require.ErrorIs(t, err, domainerrors.ErrKeyExists)
	assert.False(t, h.key(t, "a").Revoked)

	_, err = h.uc.RotateKey(ctx, h.owner, &entities.RotateKeyInput{
		OldKeyHash: entities.HashSecret("a"),
		NewKeyHash: entities.HashSecret("c"),
		NewLabel:   null.StringFrom(""),
	})
	require.ErrorIs(t, err, domainerrors.ErrInvalidName)
	assert.False(t, h.key(t, "a").Revoked)

	_, err = h.uc.RevokeKey(ctx, h.owner, entities.HashSecret("a"))
	require.NoError(t, err)
	_, err = h.uc.RotateKey(ctx, h.owner, &entities.RotateKeyInput{OldKeyHash: entities.HashSecret("a"), NewKeyHash: entities.HashSecret("c")})
	require.ErrorIs(t, err, domainerrors.ErrAlreadyRevoked)

	_, err = h.uc.GetKey(ctx, h.owner, entities.HashSecret("c"))
	require.ErrorIs(t, err, domainerrors.ErrKeyNotFound)

	svc := h.service(t)
	assert.Equal(t, uint32(1), svc.ActiveKeys)
	assert.Equal(t, uint32(2), svc.TotalKeysCreated)
}

func TestLifecycle_CloseKey(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	h.createKey(t, "live", entities.PermissionRead)
	h.createKey(t, "dead", entities.PermissionRead)

	_, err := h.uc.RevokeKey(ctx, h.owner, entities.HashSecret("dead"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.service(t).ActiveKeys)

	// revoked keys already released their slot
	closed, err := h.uc.CloseKey(ctx, h.owner, entities.HashSecret("dead"))
	require.NoError(t, err)
	assert.Equal(t, entities.KeyRecordFootprint*testDepositPerByte, closed.Refunded)
	assert.Equal(t, uint32(1), h.service(t).ActiveKeys)

	_, err = h.uc.CloseKey(ctx, h.owner, entities.HashSecret("live"))
	require.NoError(t, err)
	svc := h.service(t)
	assert.Zero(t, svc.ActiveKeys)
	assert.Equal(t, uint32(2), svc.TotalKeysCreated)

	_, err = h.uc.CloseKey(ctx, h.owner, entities.HashSecret("live"))
	require.ErrorIs(t, err, domainerrors.ErrKeyNotFound)

	acct, err := h.deposits.Get(ctx, h.owner)
	require.NoError(t, err)
	assert.Equal(t, entities.ServiceRecordFootprint*testDepositPerByte, acct.Reserved)
	assert.Equal(t, 2*entities.KeyRecordFootprint*testDepositPerByte, acct.Refunded)

	// the hash can be registered again once the record is gone
	h.createKey(t, "live", entities.PermissionRead)
}

func TestLifecycle_CloseKeyRefundsRecordedDeposit(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.uc = h.usecaseAt(1)
	svc := h.initService(t, 5, 10)
	key := h.createKey(t, "cheap", entities.PermissionRead)
	assert.Equal(t, entities.ServiceRecordFootprint, svc.Deposit)
	assert.Equal(t, entities.KeyRecordFootprint, key.Deposit)
	assert.Equal(t, entities.KeyRecordFootprint, h.key(t, "cheap").Deposit)

	// price goes up between create and close
	h.uc = h.usecaseAt(100)
	pricey := h.createKey(t, "pricey", entities.PermissionRead)
	assert.Equal(t, entities.KeyRecordFootprint*100, pricey.Deposit)

	closed, err := h.uc.CloseKey(ctx, h.owner, entities.HashSecret("cheap"))
	require.NoError(t, err)
	assert.Equal(t, entities.KeyRecordFootprint, closed.Refunded)

	_, err = h.uc.GetKey(ctx, h.owner, entities.HashSecret("cheap"))
	require.ErrorIs(t, err, domainerrors.ErrKeyNotFound)

	acct, err := h.deposits.Get(ctx, h.owner)
	require.NoError(t, err)
	assert.Equal(t, entities.ServiceRecordFootprint+entities.KeyRecordFootprint*100, acct.Reserved)
	assert.Equal(t, entities.KeyRecordFootprint, acct.Refunded)

	// and back down: the expensive key still refunds what it paid
	h.uc = h.usecaseAt(1)
	closed, err = h.uc.CloseKey(ctx, h.owner, entities.HashSecret("pricey"))
	require.NoError(t, err)
	assert.Equal(t, entities.KeyRecordFootprint*100, closed.Refunded)

	acct, err = h.deposits.Get(ctx, h.owner)
	require.NoError(t, err)
	assert.Equal(t, entities.ServiceRecordFootprint, acct.Reserved)
}

func TestLifecycle_RotatedKeyCarriesCurrentDeposit(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	h.createKey(t, "old", entities.PermissionRead)

	h.uc = h.usecaseAt(3)
	res, err := h.uc.RotateKey(ctx, h.owner, &entities.RotateKeyInput{OldKeyHash: entities.HashSecret("old"), NewKeyHash: entities.HashSecret("new")})
	require.NoError(t, err)
	assert.Equal(t, entities.KeyRecordFootprint*testDepositPerByte, res.Revoked.Deposit)
	assert.Equal(t, entities.KeyRecordFootprint*3, res.Created.Deposit)

	closed, err := h.uc.CloseKey(ctx, h.owner, entities.HashSecret("old"))
	require.NoError(t, err)
	assert.Equal(t, entities.KeyRecordFootprint*testDepositPerByte, closed.Refunded)
}

func TestLifecycle_OwnerScoping(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	h.createKey(t, "a", entities.PermissionRead)
	hash := entities.HashSecret("a")
	stranger := uuid.New()

	_, err := h.uc.RecordUsage(ctx, stranger, hash)
	require.ErrorIs(t, err, domainerrors.ErrServiceNotFound)
	_, err = h.uc.RevokeKey(ctx, stranger, hash)
	require.ErrorIs(t, err, domainerrors.ErrServiceNotFound)
	_, err = h.uc.CloseKey(ctx, uuid.Nil, hash)
	require.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	assert.Zero(t, h.key(t, "a").TotalUsage)
	assert.False(t, h.key(t, "a").Revoked)
}

func TestLifecycle_EventsFollowCommits(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	h.initService(t, 5, 10)
	h.createKey(t, "a", entities.PermissionRead)
	serviceID := entities.ServiceIDFor(h.owner)
	hash := entities.HashSecret("a")

	_, err := h.uc.ValidateKey(ctx, serviceID, hash)
	require.NoError(t, err)
	require.NoError(t, h.uc.CheckPermission(ctx, serviceID, hash, entities.PermissionRead))
	_, err = h.uc.RecordUsage(ctx, h.owner, hash)
	require.NoError(t, err)
	_, err = h.uc.UpdateKey(ctx, h.owner, hash, &entities.UpdateKeyInput{RateLimit: null.Uint32From(3)})
	require.NoError(t, err)
	_, err = h.uc.UpdateService(ctx, h.owner, &entities.UpdateServiceInput{Name: null.StringFrom("new")})
	require.NoError(t, err)
	_, err = h.uc.RevokeKey(ctx, h.owner, hash)
	require.NoError(t, err)
	_, err = h.uc.CloseKey(ctx, h.owner, hash)
	require.NoError(t, err)

	// failures emit nothing
	_, err = h.uc.RevokeKey(ctx, h.owner, hash)
	require.Error(t, err)

	assert.Equal(t, []entities.EventType{
		entities.EventServiceCreated,
		entities.EventKeyCreated,
		entities.EventKeyValidated,
		entities.EventPermissionChecked,
		entities.EventUsageRecorded,
		entities.EventKeyUpdated,
		entities.EventServiceUpdated,
		entities.EventKeyRevoked,
		entities.EventKeyClosed,
	}, h.sink.types())

	updated := h.sink.events[5]
	require.NotNil(t, updated.Previous)
	assert.Equal(t, uint32(10), updated.Previous.RateLimit)
	assert.Equal(t, uint32(3), updated.Key.RateLimit)

	closed := h.sink.events[8]
	assert.Equal(t, h.owner, closed.Owner)
	assert.Equal(t, entities.KeyRecordFootprint*testDepositPerByte, closed.Refunded)
}

func TestLifecycle_SinkFailureDoesNotFailOperation(t *testing.T) {
	h := newLifecycleHarness(t)
	h.sink.err = assert.AnError

	h.initService(t, 5, 10)
	key := h.createKey(t, "a", entities.PermissionRead)
	assert.NotNil(t, key)
	assert.Len(t, h.sink.types(), 2)
}

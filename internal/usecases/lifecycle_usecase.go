package usecases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"keyguard.backend/internal/domain/entities"
	domainerrors "keyguard.backend/internal/domain/errors"
	"keyguard.backend/internal/domain/repositories"
)

// LifecycleUsecase owns service and key records: creation, admission,
// metering, rotation and teardown. Every mutating operation runs in one
// unit of work and is authorised against the caller before anything else.
type LifecycleUsecase struct {
	serviceRepo    repositories.ServiceRepository
	keyRepo        repositories.ApiKeyRepository
	depositRepo    repositories.DepositRepository
	uow            repositories.UnitOfWork
	sink           EventSink
	depositPerByte uint64
	clock          func() time.Time
}

func NewLifecycleUsecase(
	serviceRepo repositories.ServiceRepository,
	keyRepo repositories.ApiKeyRepository,
	depositRepo repositories.DepositRepository,
	uow repositories.UnitOfWork,
	sink EventSink,
	depositPerByte uint64,
) *LifecycleUsecase {
	if sink == nil {
		sink = NopSink{}
	}
	return &LifecycleUsecase{
		serviceRepo:    serviceRepo,
		keyRepo:        keyRepo,
		depositRepo:    depositRepo,
		uow:            uow,
		sink:           sink,
		depositPerByte: depositPerByte,
		clock:          time.Now,
	}
}

// WithClock replaces the time source.
func (u *LifecycleUsecase) WithClock(clock func() time.Time) *LifecycleUsecase {
	u.clock = clock
	return u
}

func (u *LifecycleUsecase) now() int64 {
	return u.clock().Unix()
}

// InitService registers the caller's service.
func (u *LifecycleUsecase) InitService(ctx context.Context, caller uuid.UUID, input *entities.InitServiceInput) (*entities.Service, error) {
	if caller == uuid.Nil {
		return nil, domainerrors.ErrUnauthorized
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := u.now()
	svc := &entities.Service{
		ID:               entities.ServiceIDFor(caller),
		Owner:            caller,
		Name:             input.Name,
		MaxKeys:          input.MaxKeys,
		DefaultRateLimit: input.DefaultRateLimit,
		RateLimitWindow:  input.RateLimitWindow,
		CreatedAt:        now,
	}
	deposit, err := entities.DepositFor(entities.ServiceRecordFootprint, u.depositPerByte)
	if err != nil {
		return nil, err
	}
	svc.Deposit = deposit

	err = u.uow.Do(ctx, func(txCtx context.Context) error {
		if err := u.serviceRepo.Create(txCtx, svc); err != nil {
			return err
		}
		return u.reserve(txCtx, caller, svc.Deposit, now)
	})
	if err != nil {
		return nil, err
	}

	u.emit(ctx, entities.ServiceEvent(entities.EventServiceCreated, svc, now))
	return svc, nil
}

// GetService returns the caller's service.
func (u *LifecycleUsecase) GetService(ctx context.Context, caller uuid.UUID) (*entities.Service, error) {
	return u.serviceRepo.GetByID(ctx, entities.ServiceIDFor(caller))
}

// UpdateService applies the provided fields to the caller's service.
func (u *LifecycleUsecase) UpdateService(ctx context.Context, caller uuid.UUID, input *entities.UpdateServiceInput) (*entities.Service, error) {
	var svc *entities.Service
	now := u.now()

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		var err error
		txCtx = u.uow.WithLock(txCtx)
		svc, err = u.ownedService(txCtx, caller)
		if err != nil {
			return err
		}
		if err := input.Apply(svc); err != nil {
			return err
		}
		return u.serviceRepo.Update(txCtx, svc)
	})
	if err != nil {
		return nil, err
	}

	u.emit(ctx, entities.ServiceEvent(entities.EventServiceUpdated, svc, now))
	return svc, nil
}

// CreateKey registers a key hash under the caller's service.
func (u *LifecycleUsecase) CreateKey(ctx context.Context, caller uuid.UUID, input *entities.CreateKeyInput) (*entities.ApiKey, error) {
	var key *entities.ApiKey
	now := u.now()

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		txCtx = u.uow.WithLock(txCtx)
		svc, err := u.ownedService(txCtx, caller)
		if err != nil {
			return err
		}
		if err := input.Validate(now); err != nil {
			return err
		}
		if err := svc.ClaimSlot(); err != nil {
			return err
		}

		key = entities.NewApiKey(svc, input, now)
		if key.Deposit, err = entities.DepositFor(entities.KeyRecordFootprint, u.depositPerByte); err != nil {
			return err
		}
		if err := u.insertKey(txCtx, key); err != nil {
			return err
		}
		if err := u.serviceRepo.Update(txCtx, svc); err != nil {
			return err
		}
		return u.reserve(txCtx, caller, key.Deposit, now)
	})
	if err != nil {
		return nil, err
	}

	u.emit(ctx, entities.KeyEvent(entities.EventKeyCreated, key, now))
	return key, nil
}

// ListKeys returns every key record of the caller's service, revoked ones
// included.
func (u *LifecycleUsecase) ListKeys(ctx context.Context, caller uuid.UUID) ([]*entities.ApiKey, error) {
	svc, err := u.ownedService(ctx, caller)
	if err != nil {
		return nil, err
	}
	return u.keyRepo.ListByService(ctx, svc.ID)
}

// GetKey returns one key record of the caller's service.
func (u *LifecycleUsecase) GetKey(ctx context.Context, caller uuid.UUID, hash entities.KeyHash) (*entities.ApiKey, error) {
	svc, err := u.ownedService(ctx, caller)
	if err != nil {
		return nil, err
	}
	return u.keyRepo.Get(ctx, svc.ID, hash)
}

// ValidateKey reports whether the key would be admitted now. Nothing is
// written.
func (u *LifecycleUsecase) ValidateKey(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) (*entities.KeyStatus, error) {
	now := u.now()
	key, err := u.keyRepo.Get(ctx, serviceID, hash)
	if err != nil {
		return nil, err
	}
	if err := key.CheckLiveness(now); err != nil {
		return nil, err
	}

	window := key.Window()
	if !window.Allows(now) {
		return nil, domainerrors.ErrRateLimitExceeded
	}

	status := keyStatus(key, window, now)
	event := entities.KeyEvent(entities.EventKeyValidated, key, now)
	event.Remaining = status.RemainingUsage
	u.emit(ctx, event)
	return status, nil
}

// CheckPermission verifies the key is live and holds every bit of
// required. The rate window is not consulted.
func (u *LifecycleUsecase) CheckPermission(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash, required entities.Permission) error {
	if !required.IsValidRequest() {
		return domainerrors.ErrInvalidPermissions
	}

	now := u.now()
	key, err := u.keyRepo.Get(ctx, serviceID, hash)
	if err != nil {
		return err
	}
	if err := key.CheckLiveness(now); err != nil {
		return err
	}
	if err := key.Permissions.Require(required); err != nil {
		return err
	}

	event := entities.KeyEvent(entities.EventPermissionChecked, key, now)
	event.Required = required
	event.Granted = true
	u.emit(ctx, event)
	return nil
}

// RecordUsage admits one request against the key's window and counts it.
// A rejected call leaves the record unchanged.
func (u *LifecycleUsecase) RecordUsage(ctx context.Context, caller uuid.UUID, hash entities.KeyHash) (*entities.KeyStatus, error) {
	var key *entities.ApiKey
	now := u.now()

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		var err error
		txCtx = u.uow.WithLock(txCtx)
		key, err = u.ownedKey(txCtx, caller, hash)
		if err != nil {
			return err
		}
		if err := key.CheckLiveness(now); err != nil {
			return err
		}
		if err := key.RecordUsage(now); err != nil {
			return err
		}
		return u.keyRepo.Update(txCtx, key)
	})
	if err != nil {
		return nil, err
	}

	status := keyStatus(key, key.Window(), now)
	event := entities.KeyEvent(entities.EventUsageRecorded, key, now)
	event.Remaining = status.RemainingUsage
	u.emit(ctx, event)
	return status, nil
}

// UpdateKey applies the provided fields to a live key.
func (u *LifecycleUsecase) UpdateKey(ctx context.Context, caller uuid.UUID, hash entities.KeyHash, input *entities.UpdateKeyInput) (*entities.ApiKey, error) {
	var key, previous *entities.ApiKey
	now := u.now()

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		var err error
		txCtx = u.uow.WithLock(txCtx)
		key, err = u.ownedKey(txCtx, caller, hash)
		if err != nil {
			return err
		}
		before := *key
		previous = &before
		if err := input.Apply(key, now); err != nil {
			return err
		}
		return u.keyRepo.Update(txCtx, key)
	})
	if err != nil {
		return nil, err
	}

	event := entities.KeyEvent(entities.EventKeyUpdated, key, now)
	event.Previous = previous
	u.emit(ctx, event)
	return key, nil
}

// RevokeKey disables a key for good. The record stays; its slot is freed.
func (u *LifecycleUsecase) RevokeKey(ctx context.Context, caller uuid.UUID, hash entities.KeyHash) (*entities.ApiKey, error) {
	var key *entities.ApiKey
	now := u.now()

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		txCtx = u.uow.WithLock(txCtx)
		svc, err := u.ownedService(txCtx, caller)
		if err != nil {
			return err
		}
		key, err = u.keyRepo.Get(txCtx, svc.ID, hash)
		if err != nil {
			return err
		}
		if err := key.Revoke(); err != nil {
			return err
		}
		if err := svc.ReleaseSlot(); err != nil {
			return err
		}
		if err := u.keyRepo.Update(txCtx, key); err != nil {
			return err
		}
		return u.serviceRepo.Update(txCtx, svc)
	})
	if err != nil {
		return nil, err
	}

	u.emit(ctx, entities.KeyEvent(entities.EventKeyRevoked, key, now))
	return key, nil
}

// RotateKey revokes the old key and registers its successor in one unit
// of work. The successor inherits the old key's configuration.
func (u *LifecycleUsecase) RotateKey(ctx context.Context, caller uuid.UUID, input *entities.RotateKeyInput) (*entities.RotateKeyResult, error) {
	var old, next *entities.ApiKey
	now := u.now()

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		txCtx = u.uow.WithLock(txCtx)
		svc, err := u.ownedService(txCtx, caller)
		if err != nil {
			return err
		}
		old, err = u.keyRepo.Get(txCtx, svc.ID, input.OldKeyHash)
		if err != nil {
			return err
		}
		if err := old.Revoke(); err != nil {
			return err
		}
		next, err = input.Successor(old, now)
		if err != nil {
			return err
		}
		if next.Deposit, err = entities.DepositFor(entities.KeyRecordFootprint, u.depositPerByte); err != nil {
			return err
		}

		// the old slot is freed before the new one is claimed
		if err := svc.ReleaseSlot(); err != nil {
			return err
		}
		if err := svc.ClaimSlot(); err != nil {
			return err
		}

		if err := u.keyRepo.Update(txCtx, old); err != nil {
			return err
		}
		if err := u.insertKey(txCtx, next); err != nil {
			return err
		}
		if err := u.serviceRepo.Update(txCtx, svc); err != nil {
			return err
		}
		return u.reserve(txCtx, caller, next.Deposit, now)
	})
	if err != nil {
		return nil, err
	}

	u.emit(ctx,
		entities.KeyEvent(entities.EventKeyRevoked, old, now),
		entities.KeyEvent(entities.EventKeyCreated, next, now),
	)
	return &entities.RotateKeyResult{Revoked: old, Created: next}, nil
}

// CloseKey deletes the key record and refunds its deposit to the owner.
func (u *LifecycleUsecase) CloseKey(ctx context.Context, caller uuid.UUID, hash entities.KeyHash) (*entities.CloseKeyResult, error) {
	var result *entities.CloseKeyResult
	now := u.now()

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		txCtx = u.uow.WithLock(txCtx)
		svc, err := u.ownedService(txCtx, caller)
		if err != nil {
			return err
		}
		key, err := u.keyRepo.Get(txCtx, svc.ID, hash)
		if err != nil {
			return err
		}

		if !key.Revoked {
			if err := svc.ReleaseSlot(); err != nil {
				return err
			}
			if err := u.serviceRepo.Update(txCtx, svc); err != nil {
				return err
			}
		}
		if err := u.keyRepo.Delete(txCtx, svc.ID, hash); err != nil {
			return err
		}

		refunded, err := u.release(txCtx, caller, key.Deposit, now)
		if err != nil {
			return err
		}
		result = &entities.CloseKeyResult{Key: key, Refunded: refunded}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := entities.KeyEvent(entities.EventKeyClosed, result.Key, now)
	event.Owner = caller
	event.Refunded = result.Refunded
	u.emit(ctx, event)
	return result, nil
}

// ownedService loads the caller's service. Ownership is checked before the
// caller's arguments are looked at. Pass a locked ctx to hold the row.
func (u *LifecycleUsecase) ownedService(ctx context.Context, caller uuid.UUID) (*entities.Service, error) {
	if caller == uuid.Nil {
		return nil, domainerrors.ErrUnauthorized
	}
	svc, err := u.serviceRepo.GetByID(ctx, entities.ServiceIDFor(caller))
	if err != nil {
		return nil, err
	}
	if !svc.IsOwnedBy(caller) {
		return nil, domainerrors.ErrNotServiceOwner
	}
	return svc, nil
}

func (u *LifecycleUsecase) ownedKey(ctx context.Context, caller uuid.UUID, hash entities.KeyHash) (*entities.ApiKey, error) {
	svc, err := u.ownedService(ctx, caller)
	if err != nil {
		return nil, err
	}
	return u.keyRepo.Get(ctx, svc.ID, hash)
}

func (u *LifecycleUsecase) insertKey(ctx context.Context, key *entities.ApiKey) error {
	exists, err := u.keyRepo.Exists(ctx, key.ServiceID, key.KeyHash)
	if err != nil {
		return err
	}
	if exists {
		return domainerrors.ErrKeyExists
	}
	return u.keyRepo.Create(ctx, key)
}

func (u *LifecycleUsecase) reserve(ctx context.Context, owner uuid.UUID, amount uint64, now int64) error {
	acct, err := u.depositRepo.Get(ctx, owner)
	if err != nil {
		return err
	}
	if err := acct.Reserve(amount); err != nil {
		return err
	}
	acct.UpdatedAt = now
	return u.depositRepo.Save(ctx, acct)
}

// release refunds the amount recorded on the deleted record, not the
// current price.
func (u *LifecycleUsecase) release(ctx context.Context, owner uuid.UUID, amount uint64, now int64) (uint64, error) {
	acct, err := u.depositRepo.Get(ctx, owner)
	if err != nil {
		return 0, err
	}
	if err := acct.Release(amount); err != nil {
		return 0, err
	}
	acct.UpdatedAt = now
	if err := u.depositRepo.Save(ctx, acct); err != nil {
		return 0, err
	}
	return amount, nil
}

// emit hands events to the sink. Sink errors never reach the caller; sinks
// report their own failures.
func (u *LifecycleUsecase) emit(ctx context.Context, events ...entities.Event) {
	for _, e := range events {
		_ = u.sink.Publish(ctx, e)
	}
}

func keyStatus(key *entities.ApiKey, window entities.RateWindow, now int64) *entities.KeyStatus {
	return &entities.KeyStatus{
		ServiceID:      key.ServiceID,
		KeyHash:        key.KeyHash,
		Permissions:    key.Permissions,
		RemainingUsage: window.Remaining(now),
		RateLimit:      key.RateLimit,
		ResetAt:        window.ResetAt(now),
	}
}

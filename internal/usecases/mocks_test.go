package usecases_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/pkg/utils"
)

// Mock UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
}

func (m *MockUnitOfWork) Do(ctx context.Context, f func(context.Context) error) error {
	m.Called(ctx, f)
	return f(ctx)
}

func (m *MockUnitOfWork) WithLock(ctx context.Context) context.Context {
	m.Called(ctx)
	return ctx
}

// Mock ServiceRepository
type MockServiceRepository struct {
	mock.Mock
}

func (m *MockServiceRepository) Create(ctx context.Context, svc *entities.Service) error {
	args := m.Called(ctx, svc)
	return args.Error(0)
}

func (m *MockServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Service), args.Error(1)
}

func (m *MockServiceRepository) GetByOwner(ctx context.Context, owner uuid.UUID) (*entities.Service, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Service), args.Error(1)
}

func (m *MockServiceRepository) Update(ctx context.Context, svc *entities.Service) error {
	args := m.Called(ctx, svc)
	return args.Error(0)
}

func (m *MockServiceRepository) List(ctx context.Context) ([]*entities.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Service), args.Error(1)
}

// Mock ApiKeyRepository
type MockApiKeyRepository struct {
	mock.Mock
}

func (m *MockApiKeyRepository) Create(ctx context.Context, key *entities.ApiKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockApiKeyRepository) Get(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) (*entities.ApiKey, error) {
	args := m.Called(ctx, serviceID, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ApiKey), args.Error(1)
}

func (m *MockApiKeyRepository) Exists(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) (bool, error) {
	args := m.Called(ctx, serviceID, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockApiKeyRepository) ListByService(ctx context.Context, serviceID uuid.UUID) ([]*entities.ApiKey, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ApiKey), args.Error(1)
}

func (m *MockApiKeyRepository) Update(ctx context.Context, key *entities.ApiKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockApiKeyRepository) Delete(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash) error {
	args := m.Called(ctx, serviceID, hash)
	return args.Error(0)
}

func (m *MockApiKeyRepository) CountExpiredActive(ctx context.Context, now int64) (map[uuid.UUID]int64, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]int64), args.Error(1)
}

// Mock DepositRepository
type MockDepositRepository struct {
	mock.Mock
}

func (m *MockDepositRepository) Get(ctx context.Context, owner uuid.UUID) (*entities.DepositAccount, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DepositAccount), args.Error(1)
}

func (m *MockDepositRepository) Save(ctx context.Context, account *entities.DepositAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// Mock AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account *entities.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*entities.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

// Mock KeyEventRepository
type MockKeyEventRepository struct {
	mock.Mock
}

func (m *MockKeyEventRepository) Append(ctx context.Context, event entities.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockKeyEventRepository) ListByService(ctx context.Context, serviceID uuid.UUID, pagination utils.PaginationParams) ([]entities.Event, int64, error) {
	args := m.Called(ctx, serviceID, pagination)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]entities.Event), args.Get(1).(int64), args.Error(2)
}

// recordingSink keeps every published event; err is returned from each
// Publish after recording.
type recordingSink struct {
	mu     sync.Mutex
	events []entities.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, e entities.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) types() []entities.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

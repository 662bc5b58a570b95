package usecases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"keyguard.backend/internal/domain/entities"
	domainerrors "keyguard.backend/internal/domain/errors"
	"keyguard.backend/internal/domain/repositories"
	"keyguard.backend/pkg/crypto"
	"keyguard.backend/pkg/jwt"
)

// AuthUsecase handles owner account registration and token issuance. The
// account ID doubles as the caller identity of every engine operation.
type AuthUsecase struct {
	accountRepo repositories.AccountRepository
	jwtService  *jwt.JWTService
}

// NewAuthUsecase creates a new auth usecase
func NewAuthUsecase(accountRepo repositories.AccountRepository, jwtService *jwt.JWTService) *AuthUsecase {
	return &AuthUsecase{
		accountRepo: accountRepo,
		jwtService:  jwtService,
	}
}

// Register creates an owner account
func (u *AuthUsecase) Register(ctx context.Context, input *entities.RegisterInput) (*entities.Account, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, domainerrors.BadRequest("email and password are required")
	}

	_, err := u.accountRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, domainerrors.ErrAccountExists
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	passwordHash, err := crypto.HashPassword(input.Password)
	if errors.Is(err, crypto.ErrAccountPasswordTooLong) {
		return nil, domainerrors.BadRequest("password must be at most 72 bytes")
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &entities.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Login authenticates an owner and returns tokens
func (u *AuthUsecase) Login(ctx context.Context, input *entities.LoginInput) (*entities.AuthResponse, error) {
	account, err := u.accountRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !crypto.CheckPassword(input.Password, account.PasswordHash) {
		return nil, domainerrors.ErrInvalidCredentials
	}

	tokenPair, err := u.jwtService.GenerateTokenPair(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	return &entities.AuthResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		Account:      account,
	}, nil
}

// RefreshToken issues a new pair from a valid refresh token
func (u *AuthUsecase) RefreshToken(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	claims, err := u.jwtService.ValidateTokenOfType(refreshToken, jwt.TokenTypeRefresh)
	if err != nil {
		return nil, domainerrors.ErrUnauthorized
	}

	account, err := u.accountRepo.GetByID(ctx, claims.OwnerID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.ErrUnauthorized
		}
		return nil, err
	}

	return u.jwtService.GenerateTokenPair(account.ID, account.Email)
}

// GetAccountByID gets an account by ID
func (u *AuthUsecase) GetAccountByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	return u.accountRepo.GetByID(ctx, id)
}

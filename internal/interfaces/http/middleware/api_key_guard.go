package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"keyguard.backend/internal/domain/entities"
	domainerrors "keyguard.backend/internal/domain/errors"
	"keyguard.backend/internal/infrastructure/monitoring"
	"keyguard.backend/internal/interfaces/http/response"
	"keyguard.backend/pkg/crypto"
	"keyguard.backend/pkg/logger"
)

const (
	ApiKeyHeader = "X-Api-Key"

	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"

	// KeyStatusKey is the context key for the admitted key's status
	KeyStatusKey = "keyStatus"
)

var logDenial = logger.Info

// KeyAuthorizer is the part of the engine the guard needs.
type KeyAuthorizer interface {
	CheckPermission(ctx context.Context, serviceID uuid.UUID, hash entities.KeyHash, required entities.Permission) error
	RecordUsage(ctx context.Context, caller uuid.UUID, hash entities.KeyHash) (*entities.KeyStatus, error)
}

// RawApiKey extracts the raw key from X-Api-Key, falling back to a bearer
// Authorization header.
func RawApiKey(c *gin.Context) (string, bool) {
	if key := strings.TrimSpace(c.GetHeader(ApiKeyHeader)); key != "" {
		return key, true
	}
	return bearerToken(c)
}

// ApiKeyGuard protects downstream routes of the service owned by owner.
// The presented key must hold required; each admitted request is metered
// against the key's rate window.
func ApiKeyGuard(engine KeyAuthorizer, owner uuid.UUID, required entities.Permission) gin.HandlerFunc {
	serviceID := entities.ServiceIDFor(owner)

	return func(c *gin.Context) {
		raw, ok := RawApiKey(c)
		if !ok {
			response.ErrorWithStatus(c, http.StatusUnauthorized, "UNAUTHORIZED", "API key is required")
			return
		}
		hash := entities.HashSecret(raw)
		ctx := c.Request.Context()

		if err := engine.CheckPermission(ctx, serviceID, hash, required); err != nil {
			deny(c, raw, err)
			return
		}

		status, err := engine.RecordUsage(ctx, owner, hash)
		if err != nil {
			deny(c, raw, err)
			return
		}

		setRateLimitHeaders(c, status)
		c.Set(KeyStatusKey, status)
		c.Next()
	}
}

// GetKeyStatus returns the status of the key admitted by ApiKeyGuard.
func GetKeyStatus(c *gin.Context) (*entities.KeyStatus, bool) {
	v, exists := c.Get(KeyStatusKey)
	if !exists {
		return nil, false
	}
	status, ok := v.(*entities.KeyStatus)
	return status, ok
}

func setRateLimitHeaders(c *gin.Context, status *entities.KeyStatus) {
	c.Header(RateLimitLimitHeader, strconv.FormatUint(uint64(status.RateLimit), 10))
	c.Header(RateLimitRemainingHeader, strconv.FormatUint(uint64(status.RemainingUsage), 10))
	c.Header(RateLimitResetHeader, strconv.FormatInt(status.ResetAt, 10))
}

func deny(c *gin.Context, raw string, err error) {
	switch {
	case domainerrors.IsDenial(err):
		code := domainerrors.CodeOf(err)
		monitoring.RecordDenial(code)
		logDenial(c.Request.Context(), "Key request denied",
			zap.String("reason", code), zap.String("api_key", crypto.MaskApiKey(raw)))
	case domainerrors.KindOf(err) == domainerrors.KindNotFound:
		// unknown keys are not distinguishable from bad ones
		monitoring.RecordDenial("UNKNOWN_KEY")
		logDenial(c.Request.Context(), "Unknown API key presented",
			zap.String("api_key", crypto.MaskApiKey(raw)))
		response.ErrorWithStatus(c, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key")
		return
	}
	response.Error(c, err)
}

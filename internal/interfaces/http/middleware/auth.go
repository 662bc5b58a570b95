package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"keyguard.backend/internal/interfaces/http/response"
	"keyguard.backend/pkg/jwt"
	"keyguard.backend/pkg/logger"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens
	BearerPrefix = "Bearer "
	// OwnerIDKey is the context key for the authenticated owner ID
	OwnerIDKey = "ownerId"
	// OwnerEmailKey is the context key for the owner email
	OwnerEmailKey = "ownerEmail"
)

// AuthMiddleware authenticates service owners by JWT access token
func AuthMiddleware(jwtService *jwt.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			logger.Debug(c.Request.Context(), "Missing bearer token", zap.String("path", c.Request.URL.Path))
			response.ErrorWithStatus(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header is required. Use: Bearer <token>")
			return
		}

		claims, err := jwtService.ValidateTokenOfType(tokenString, jwt.TokenTypeAccess)
		if err != nil {
			logger.Debug(c.Request.Context(), "Token rejected",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			if errors.Is(err, jwt.ErrExpiredToken) {
				response.ErrorWithStatus(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
				return
			}
			response.ErrorWithStatus(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}

		c.Set(OwnerIDKey, claims.OwnerID)
		c.Set(OwnerEmailKey, claims.Email)

		ctx := context.WithValue(c.Request.Context(), logger.OwnerIDKey, claims.OwnerID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetOwnerID gets the authenticated owner ID from context
func GetOwnerID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(OwnerIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// GetOwnerEmail gets the owner email from context
func GetOwnerEmail(c *gin.Context) (string, bool) {
	v, exists := c.Get(OwnerEmailKey)
	if !exists {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

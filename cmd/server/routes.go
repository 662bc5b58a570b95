package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/infrastructure/monitoring"
	"keyguard.backend/internal/interfaces/http/handlers"
	"keyguard.backend/internal/interfaces/http/middleware"
	"keyguard.backend/pkg/redis"
)

const (
	serviceName    = "keyguard-backend"
	serviceVersion = "0.1.0"
)

type routeDeps struct {
	authHandler    *handlers.AuthHandler
	serviceHandler *handlers.ServiceHandler
	apiKeyHandler  *handlers.ApiKeyHandler
	authMiddleware gin.HandlerFunc
	// responseStore is nil when Redis is unavailable
	responseStore *redis.ResponseStore
}

func applyCORSMiddleware(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Api-Key, X-Request-ID, Idempotency-Key")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, X-Idempotency-Hit")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
			"version": serviceVersion,
		})
	})
}

// registerMetricsRoute exposes prometheus metrics. With a guard the scraper
// must present a key of the configured owner's service.
func registerMetricsRoute(r *gin.Engine, guard gin.HandlerFunc) {
	if guard == nil {
		r.GET("/metrics", monitoring.GinHandler())
		return
	}
	r.GET("/metrics", guard, monitoring.GinHandler())
}

func metricsGuard(engine middleware.KeyAuthorizer, ownerID string) (gin.HandlerFunc, error) {
	if ownerID == "" {
		return nil, nil
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, err
	}
	return middleware.ApiKeyGuard(engine, owner, entities.PermissionRead), nil
}

func (d routeDeps) idempotent() gin.HandlerFunc {
	if d.responseStore == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.IdempotencyMiddleware(d.responseStore)
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	idempotent := d.idempotent()

	v1 := r.Group("/api/v1")
	{
		// Auth routes (public)
		auth := v1.Group("/auth")
		{
			auth.POST("/register", d.authHandler.Register)
			auth.POST("/login", d.authHandler.Login)
			auth.POST("/refresh", d.authHandler.RefreshToken)
			auth.GET("/me", d.authMiddleware, d.authHandler.GetMe)
		}

		// Key checks by downstream services (public, key in header)
		services := v1.Group("/services/:serviceId")
		{
			services.POST("/validate", d.apiKeyHandler.ValidateKey)
			services.POST("/check-permission", d.apiKeyHandler.CheckPermission)
		}

		// Service routes (protected)
		service := v1.Group("/service")
		service.Use(d.authMiddleware)
		{
			service.POST("", idempotent, d.serviceHandler.InitService)
			service.GET("", d.serviceHandler.GetService)
			service.PATCH("", d.serviceHandler.UpdateService)
			service.GET("/events", d.serviceHandler.ListEvents)
		}

		// Key routes (protected)
		keys := v1.Group("/keys")
		keys.Use(d.authMiddleware)
		{
			keys.POST("", idempotent, d.apiKeyHandler.CreateKey)
			keys.GET("", d.apiKeyHandler.ListKeys)
			keys.GET("/:hash", d.apiKeyHandler.GetKey)
			keys.PATCH("/:hash", d.apiKeyHandler.UpdateKey)
			keys.DELETE("/:hash", d.apiKeyHandler.CloseKey)
			keys.POST("/:hash/revoke", idempotent, d.apiKeyHandler.RevokeKey)
			keys.POST("/:hash/rotate", idempotent, d.apiKeyHandler.RotateKey)
			keys.POST("/:hash/usage", idempotent, d.apiKeyHandler.RecordUsage)
		}
	}
}

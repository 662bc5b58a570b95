package middleware

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"keyguard.backend/internal/infrastructure/monitoring"
	"keyguard.backend/internal/interfaces/http/response"
	"keyguard.backend/pkg/logger"
	"keyguard.backend/pkg/redis"
)

const (
	IdempotencyHeader    = "Idempotency-Key"
	IdempotencyHitHeader = "X-Idempotency-Hit"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a request that
// carried the same Idempotency-Key for the same owner. Only 2xx responses
// are stored; anything else releases the key so the client may retry.
// It must run after AuthMiddleware.
func IdempotencyMiddleware(store *redis.ResponseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > 255 {
			response.ErrorWithStatus(c, http.StatusBadRequest, "BAD_REQUEST", "Idempotency-Key must be at most 255 characters")
			return
		}

		scope := "anonymous"
		if owner, ok := GetOwnerID(c); ok {
			scope = owner.String()
		}
		scope = scope + ":" + c.Request.Method + ":" + c.FullPath()

		ctx := c.Request.Context()
		stored, err := store.Lookup(ctx, scope, key)
		switch {
		case errors.Is(err, redis.ErrInFlight):
			response.ErrorWithStatus(c, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Request already in progress")
			return
		case err != nil:
			// store unavailable: serve the request without idempotency
			logger.Warn(ctx, "Idempotency lookup failed", zap.Error(err))
			c.Next()
			return
		case stored != nil:
			monitoring.RecordIdempotencyHit()
			c.Header(IdempotencyHitHeader, "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		if err := store.Claim(ctx, scope, key); err != nil {
			if errors.Is(err, redis.ErrInFlight) {
				response.ErrorWithStatus(c, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Request already in progress")
				return
			}
			logger.Warn(ctx, "Idempotency claim failed", zap.Error(err))
			c.Next()
			return
		}

		w := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			err = store.Complete(ctx, scope, key, &redis.StoredResponse{
				Status:      status,
				ContentType: c.Writer.Header().Get("Content-Type"),
				Body:        w.body.Bytes(),
			})
		} else {
			err = store.Release(ctx, scope, key)
		}
		if err != nil {
			logger.Warn(ctx, "Idempotency store update failed", zap.Error(err))
		}
	}
}

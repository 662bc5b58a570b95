package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"keyguard.backend/internal/infrastructure/events"
	"keyguard.backend/internal/infrastructure/repositories"
	"keyguard.backend/internal/interfaces/http/middleware"
	"keyguard.backend/internal/usecases"
	"keyguard.backend/pkg/jwt"
)

const testEpoch = int64(1_700_000_000)

type apiHarness struct {
	router *gin.Engine
	jwt    *jwt.JWTService
	now    int64
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, repositories.AutoMigrate(db))

	h := &apiHarness{
		jwt: jwt.NewJWTService("handler-secret", time.Hour, 24*time.Hour),
		now: testEpoch,
	}

	serviceRepo := repositories.NewServiceRepository(db)
	eventRepo := repositories.NewKeyEventRepository(db)
	lifecycle := usecases.NewLifecycleUsecase(
		serviceRepo,
		repositories.NewApiKeyRepository(db),
		repositories.NewDepositRepository(db),
		repositories.NewUnitOfWork(db),
		events.NewAuditSink(eventRepo),
		10,
	).WithClock(func() time.Time { return time.Unix(h.now, 0) })

	authHandler := NewAuthHandler(usecases.NewAuthUsecase(repositories.NewAccountRepository(db), h.jwt))
	serviceHandler := NewServiceHandler(lifecycle, usecases.NewAuditUsecase(serviceRepo, eventRepo))
	keyHandler := NewApiKeyHandler(lifecycle)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/refresh", authHandler.RefreshToken)
	v1.POST("/services/:serviceId/validate", keyHandler.ValidateKey)
	v1.POST("/services/:serviceId/check-permission", keyHandler.CheckPermission)

	owner := v1.Group("", middleware.AuthMiddleware(h.jwt))
	owner.GET("/auth/me", authHandler.GetMe)
	owner.POST("/service", serviceHandler.InitService)
	owner.GET("/service", serviceHandler.GetService)
	owner.PATCH("/service", serviceHandler.UpdateService)
	owner.GET("/service/events", serviceHandler.ListEvents)
	owner.POST("/keys", keyHandler.CreateKey)
	owner.GET("/keys", keyHandler.ListKeys)
	owner.GET("/keys/:hash", keyHandler.GetKey)
	owner.PATCH("/keys/:hash", keyHandler.UpdateKey)
	owner.DELETE("/keys/:hash", keyHandler.CloseKey)
	owner.POST("/keys/:hash/revoke", keyHandler.RevokeKey)
	owner.POST("/keys/:hash/rotate", keyHandler.RotateKey)
	owner.POST("/keys/:hash/usage", keyHandler.RecordUsage)

	h.router = r
	return h
}

func (h *apiHarness) tokenFor(t *testing.T, owner uuid.UUID) string {
	t.Helper()
	pair, err := h.jwt.GenerateTokenPair(owner, "owner@example.com")
	require.NoError(t, err)
	return pair.AccessToken
}

func (h *apiHarness) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(middleware.AuthorizationHeader, middleware.BearerPrefix+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"keyguard.backend/internal/config"
	"keyguard.backend/internal/infrastructure/datasources"
	"keyguard.backend/internal/infrastructure/events"
	"keyguard.backend/internal/infrastructure/jobs"
	"keyguard.backend/internal/infrastructure/monitoring"
	"keyguard.backend/internal/infrastructure/repositories"
	"keyguard.backend/internal/interfaces/http/handlers"
	"keyguard.backend/internal/interfaces/http/middleware"
	"keyguard.backend/internal/usecases"
	"keyguard.backend/pkg/jwt"
	"keyguard.backend/pkg/logger"
	"keyguard.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = datasources.NewConnection
	runServer  = func(ctx context.Context, r *gin.Engine, port string) error {
		srv := &http.Server{Addr: ":" + port, Handler: r}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
	getStdDB = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		logger.Error(context.Background(), "Server exited", zap.Error(err))
		os.Exit(1)
	}
}

func applyLogLevel(ctx context.Context, raw string) {
	if raw == "" {
		return
	}
	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid LOG_LEVEL", zap.String("level", raw))
		return
	}
	logger.SetLevel(level)
}

func runMainProcess() error {
	dotenvErr := loadDotenv()

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	ctx := context.Background()
	applyLogLevel(ctx, cfg.Server.LogLevel)
	logger.Info(ctx, "Logger initialized", zap.String("env", cfg.Server.Env))
	if dotenvErr != nil {
		logger.Debug(ctx, "No .env file found, using environment variables")
	}

	monitoring.Init()

	redisReady := false
	if cfg.Redis.Enabled() {
		if err := initRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
			logger.Warn(ctx, "Redis unavailable, running without event channel and idempotency", zap.Error(err))
		} else {
			redisReady = true
			defer redis.Close()
			logger.Info(ctx, "Redis initialized")
		}
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := repositories.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info(ctx, "Connected to database", zap.String("driver", cfg.Database.Driver))

	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// Repositories
	accountRepo := repositories.NewAccountRepository(db)
	serviceRepo := repositories.NewServiceRepository(db)
	apiKeyRepo := repositories.NewApiKeyRepository(db)
	depositRepo := repositories.NewDepositRepository(db)
	eventRepo := repositories.NewKeyEventRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// Event sinks
	sink := usecases.MultiSink{
		events.Guard("log", events.NewLogSink()),
		events.Guard("audit", events.NewAuditSink(eventRepo)),
		events.Guard("metrics", events.NewMetricsSink()),
	}
	var responseStore *redis.ResponseStore
	if redisReady {
		sink = append(sink, events.Guard("redis", events.NewRedisSink(cfg.Redis.EventChannel)))
		responseStore = redis.NewResponseStore("idempotency", cfg.Engine.IdempotencyLockTTL, cfg.Engine.IdempotencyRetention)
	}

	// Usecases
	authUsecase := usecases.NewAuthUsecase(accountRepo, jwtService)
	lifecycle := usecases.NewLifecycleUsecase(serviceRepo, apiKeyRepo, depositRepo, uow, sink, cfg.Engine.DepositPerByte)
	auditUsecase := usecases.NewAuditUsecase(serviceRepo, eventRepo)

	// Handlers
	authHandler := handlers.NewAuthHandler(authUsecase)
	serviceHandler := handlers.NewServiceHandler(lifecycle, auditUsecase)
	apiKeyHandler := handlers.NewApiKeyHandler(lifecycle)

	guard, err := metricsGuard(lifecycle, cfg.Engine.MetricsOwnerID)
	if err != nil {
		return fmt.Errorf("invalid METRICS_OWNER_ID: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	expiryJob := jobs.NewKeyExpiryReportJob(apiKeyRepo, serviceRepo, cfg.Engine.ExpiryScanInterval).WithDBStats(sqlDB)
	go expiryJob.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware("/health", "/metrics"))
	r.Use(monitoring.MetricsMiddleware())

	applyCORSMiddleware(r)
	registerHealthRoute(r)
	registerMetricsRoute(r, guard)
	registerAPIV1Routes(r, routeDeps{
		authHandler:    authHandler,
		serviceHandler: serviceHandler,
		apiKeyHandler:  apiKeyHandler,
		authMiddleware: middleware.AuthMiddleware(jwtService),
		responseStore:  responseStore,
	})

	for _, route := range r.Routes() {
		logger.Debug(ctx, "Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info(context.Background(), "Shutting down server")
			expiryJob.Stop()
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info(ctx, "Keyguard backend starting",
		zap.String("port", cfg.Server.Port),
		zap.String("api", "http://localhost:"+cfg.Server.Port+"/api/v1"),
	)

	if err := runServer(ctx, r, cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

package jobs

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/infrastructure/monitoring"
	"keyguard.backend/pkg/logger"
)

type expiredKeyCounter interface {
	CountExpiredActive(ctx context.Context, now int64) (map[uuid.UUID]int64, error)
}

type serviceLister interface {
	List(ctx context.Context) ([]*entities.Service, error)
}

// KeyExpiryReportJob periodically publishes per-service counts of active
// keys and of expired keys that still hold a slot. It never mutates records.
type KeyExpiryReportJob struct {
	keys     expiredKeyCounter
	services serviceLister
	db       *sql.DB
	interval time.Duration
	clock    func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

func NewKeyExpiryReportJob(keys expiredKeyCounter, services serviceLister, interval time.Duration) *KeyExpiryReportJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &KeyExpiryReportJob{
		keys:     keys,
		services: services,
		interval: interval,
		clock:    time.Now,
		stop:     make(chan struct{}),
	}
}

// WithDBStats also reports connection pool usage on every scan.
func (j *KeyExpiryReportJob) WithDBStats(db *sql.DB) *KeyExpiryReportJob {
	j.db = db
	return j
}

func (j *KeyExpiryReportJob) Start(ctx context.Context) {
	logger.Info(ctx, "Starting key expiry report job", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.report(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Key expiry report job stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "Key expiry report job stopped")
			return
		case <-ticker.C:
			j.report(ctx)
		}
	}
}

// Stop ends the loop. Later calls are no-ops.
func (j *KeyExpiryReportJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *KeyExpiryReportJob) report(ctx context.Context) {
	start := time.Now()
	defer func() { monitoring.RecordExpiryScan(time.Since(start)) }()

	if j.db != nil {
		stats := j.db.Stats()
		monitoring.SetDBConnections(stats.InUse, stats.Idle)
	}

	services, err := j.services.List(ctx)
	if err != nil {
		logger.Error(ctx, "Failed to list services", zap.Error(err))
		return
	}

	expired, err := j.keys.CountExpiredActive(ctx, j.clock().Unix())
	if err != nil {
		logger.Error(ctx, "Failed to count expired keys", zap.Error(err))
		return
	}

	var total int64
	for _, svc := range services {
		id := svc.ID.String()
		monitoring.SetActiveKeys(id, float64(svc.ActiveKeys))
		monitoring.SetExpiredKeys(id, float64(expired[svc.ID]))
		total += expired[svc.ID]
	}

	if total > 0 {
		logger.Info(ctx, "Expired keys still holding slots",
			zap.Int("services", len(services)),
			zap.Int64("expired_keys", total),
		)
	}
}

package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Engine metrics
	EventsTotal      *prometheus.CounterVec
	DenialsTotal     *prometheus.CounterVec
	UsageTotal       *prometheus.CounterVec
	ActiveKeys       *prometheus.GaugeVec
	ExpiredKeys      *prometheus.GaugeVec
	EventSinkErrors  *prometheus.CounterVec
	IdempotencyHits  prometheus.Counter
	ExpiryScanLength prometheus.Histogram

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		EventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_events_total",
				Help: "Total number of engine events by type",
			},
			[]string{"type"},
		),
		DenialsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_denials_total",
				Help: "Total number of denied key requests by reason",
			},
			[]string{"reason"},
		),
		UsageTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_usage_recorded_total",
				Help: "Total number of recorded key uses per service",
			},
			[]string{"service_id"},
		),
		ActiveKeys: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyguard_active_keys",
				Help: "Number of unrevoked keys per service",
			},
			[]string{"service_id"},
		),
		ExpiredKeys: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyguard_expired_unrevoked_keys",
				Help: "Number of expired keys still holding a slot, per service",
			},
			[]string{"service_id"},
		),
		EventSinkErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyguard_event_sink_errors_total",
				Help: "Total number of failed event deliveries by sink",
			},
			[]string{"sink"},
		),
		IdempotencyHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "keyguard_idempotency_replays_total",
				Help: "Total number of responses replayed from the idempotency store",
			},
		),
		ExpiryScanLength: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keyguard_expiry_scan_duration_seconds",
				Help:    "Duration of the expired key report scan",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
		),

		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinHandler returns a Gin-compatible handler for Prometheus metrics
func GinHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordEvent counts an engine event.
func RecordEvent(eventType string) {
	Get().EventsTotal.WithLabelValues(eventType).Inc()
}

// RecordDenial counts a denied key request. reason is the error code.
func RecordDenial(reason string) {
	Get().DenialsTotal.WithLabelValues(reason).Inc()
}

// RecordUsage counts one recorded use for a service.
func RecordUsage(serviceID string) {
	Get().UsageTotal.WithLabelValues(serviceID).Inc()
}

// SetActiveKeys sets the active key gauge for a service.
func SetActiveKeys(serviceID string, n float64) {
	Get().ActiveKeys.WithLabelValues(serviceID).Set(n)
}

// SetExpiredKeys sets the expired-but-unrevoked gauge for a service.
func SetExpiredKeys(serviceID string, n float64) {
	Get().ExpiredKeys.WithLabelValues(serviceID).Set(n)
}

// RecordSinkError counts a failed event delivery.
func RecordSinkError(sink string) {
	Get().EventSinkErrors.WithLabelValues(sink).Inc()
}

// RecordIdempotencyHit counts a replayed response.
func RecordIdempotencyHit() {
	Get().IdempotencyHits.Inc()
}

// RecordExpiryScan records how long an expiry scan took.
func RecordExpiryScan(duration time.Duration) {
	Get().ExpiryScanLength.Observe(duration.Seconds())
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	Get().DBConnectionsActive.Set(float64(active))
	Get().DBConnectionsIdle.Set(float64(idle))
}

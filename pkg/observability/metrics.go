package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthFailuresTotal     *prometheus.CounterVec
	TenantMismatchesTotal *prometheus.CounterVec

	// Cache metrics
	CacheInvalidationsTotal *prometheus.CounterVec
	CacheErrorsTotal        prometheus.Counter

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Webhook metrics
	WebhookDeliveriesTotal *prometheus.CounterVec
	WebhookRetryQueueDepth prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Rate limiting
	RateLimitRejectionsTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendorgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vendorgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendorgate_auth_failures_total",
				Help: "Authentication and authorization failures by code",
			},
			[]string{"code"},
		),
		TenantMismatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendorgate_tenant_mismatches_total",
				Help: "Cross-tenant access attempts detected by the tenant-scope validator",
			},
			[]string{"path"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendorgate_cache_invalidations_total",
				Help: "Cache tag invalidations by resource type",
			},
			[]string{"resource"},
		),
		CacheErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vendorgate_cache_errors_total",
				Help: "Best-effort cache operations that failed",
			},
		),
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendorgate_storage_operations_total",
				Help: "Object storage operations",
			},
			[]string{"operation", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vendorgate_storage_operation_duration_seconds",
				Help:    "Object storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendorgate_webhook_deliveries_total",
				Help: "Webhook delivery attempts by outcome",
			},
			[]string{"status"},
		),
		WebhookRetryQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vendorgate_webhook_retry_queue_depth",
				Help: "Deliveries currently awaiting retry",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vendorgate_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vendorgate_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		RateLimitRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vendorgate_ratelimit_rejections_total",
				Help: "Requests rejected at the edge by the rate limiter",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthFailuresTotal,
		m.TenantMismatchesTotal,
		m.CacheInvalidationsTotal,
		m.CacheErrorsTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.WebhookDeliveriesTotal,
		m.WebhookRetryQueueDepth,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.RateLimitRejectionsTotal,
	)

	return m
}

// Handler returns an http.Handler serving the metrics registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveStorageOperation records an object storage operation
func (m *Metrics) ObserveStorageOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

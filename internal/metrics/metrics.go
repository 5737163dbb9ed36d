package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/postline/postline/internal/core"
)

// Recorder is the metrics interface the rest of the application records
// against.
type Recorder = core.Recorder

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Connection Lifecycle Metrics
	ConnectionsEstablishedTotal  *prometheus.CounterVec
	ConnectionsDisconnectedTotal *prometheus.CounterVec
	ConnectionLimitHitsTotal     *prometheus.CounterVec
	ConnectionsByStatus          *prometheus.GaugeVec
	ConnectionEstablishDuration  *prometheus.HistogramVec

	// Token Metrics
	TokenRefreshTotal    *prometheus.CounterVec
	TokenRefreshDuration *prometheus.HistogramVec
	ReauthRequiredTotal  *prometheus.CounterVec

	// Health Check Metrics
	HealthChecksTotal   *prometheus.CounterVec
	HealthCheckDuration *prometheus.HistogramVec

	// Outbound Platform API Metrics
	PlatformAPICallDuration *prometheus.HistogramVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	return &Metrics{
		ConnectionsEstablishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_connections_established_total",
				Help: "Total number of connect attempts by platform and result",
			},
			[]string{"platform", "result"}, // success, error
		),
		ConnectionsDisconnectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_connections_disconnected_total",
				Help: "Total number of disconnects by platform",
			},
			[]string{"platform"},
		),
		ConnectionLimitHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_connection_limit_hits_total",
				Help: "Connect attempts rejected by the plan connection limit",
			},
			[]string{"plan"},
		),
		ConnectionsByStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "social_connections",
				Help: "Current number of stored connections by status",
			},
			[]string{"status"},
		),
		ConnectionEstablishDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "social_connection_establish_duration_seconds",
				Help:    "Time taken to exchange a code and store a connection",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform"},
		),

		TokenRefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_token_refresh_total",
				Help: "Total number of token refreshes by platform and result",
			},
			[]string{"platform", "result"},
		),
		TokenRefreshDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "social_token_refresh_duration_seconds",
				Help:    "Time taken to refresh an access token",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform"},
		),
		ReauthRequiredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_reauth_required_total",
				Help: "Connections degraded to needs_reauth by platform and reason",
			},
			[]string{"platform", "reason"},
		),

		HealthChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_health_checks_total",
				Help: "Total number of connection health checks by platform and status",
			},
			[]string{"platform", "status"}, // healthy, unhealthy
		),
		HealthCheckDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "social_health_check_duration_seconds",
				Help:    "Time taken to run a connection health check",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform"},
		),

		PlatformAPICallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "social_platform_api_call_duration_seconds",
				Help:    "Duration of outbound platform API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform", "operation"},
		),

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
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of in-flight HTTP requests",
			},
		),

		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors by operation",
			},
			[]string{"operation"},
		),
	}
}

// RecordConnectionEstablished records a connect attempt
func (m *Metrics) RecordConnectionEstablished(platform string, success bool, duration time.Duration) {
	m.ConnectionsEstablishedTotal.WithLabelValues(platform, resultLabel(success)).Inc()
	if success {
		m.ConnectionEstablishDuration.WithLabelValues(platform).Observe(duration.Seconds())
	}
}

// RecordConnectionDisconnected records a disconnect
func (m *Metrics) RecordConnectionDisconnected(platform string) {
	m.ConnectionsDisconnectedTotal.WithLabelValues(platform).Inc()
}

// RecordConnectionLimitHit records a connect rejected by the plan limit
func (m *Metrics) RecordConnectionLimitHit(plan string) {
	m.ConnectionLimitHitsTotal.WithLabelValues(plan).Inc()
}

// RecordTokenRefresh records a refresh attempt
func (m *Metrics) RecordTokenRefresh(platform string, success bool, duration time.Duration) {
	m.TokenRefreshTotal.WithLabelValues(platform, resultLabel(success)).Inc()
	if success {
		m.TokenRefreshDuration.WithLabelValues(platform).Observe(duration.Seconds())
	}
}

// RecordReauthRequired records a connection degrading to needs_reauth
func (m *Metrics) RecordReauthRequired(platform, reason string) {
	m.ReauthRequiredTotal.WithLabelValues(platform, reason).Inc()
}

// RecordHealthCheck records one health check outcome
func (m *Metrics) RecordHealthCheck(platform, status string, duration time.Duration) {
	m.HealthChecksTotal.WithLabelValues(platform, status).Inc()
	m.HealthCheckDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordPlatformAPICall records an outbound platform API call
func (m *Metrics) RecordPlatformAPICall(platform, operation string, duration time.Duration) {
	m.PlatformAPICallDuration.WithLabelValues(platform, operation).Observe(duration.Seconds())
}

// SetConnectionsCount sets the stored-connections gauge for one status
func (m *Metrics) SetConnectionsCount(status string, count int) {
	m.ConnectionsByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordDatabaseQueryError records a database query error
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}

func resultLabel(success bool) string {
	if success {
		return resultSuccess
	}
	return resultError
}

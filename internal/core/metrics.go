package core

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Connection lifecycle
	RecordConnectionEstablished(platform string, success bool, duration time.Duration)
	RecordConnectionDisconnected(platform string)
	RecordConnectionLimitHit(plan string)

	// Token operations
	RecordTokenRefresh(platform string, success bool, duration time.Duration)
	RecordReauthRequired(platform, reason string)

	// Health checks
	RecordHealthCheck(platform, status string, duration time.Duration)

	// Outbound platform API calls
	RecordPlatformAPICall(platform, operation string, duration time.Duration)

	// Gauge setters (for periodic updates)
	SetConnectionsCount(status string, count int)

	// Database operations
	RecordDatabaseQueryError(operation string)
}

// MetricsStore defines the DB operations needed by the gauge refresh job.
type MetricsStore interface {
	CountConnectionsByStatus() (map[string]int64, error)
}

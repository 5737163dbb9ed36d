package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// Connection lifecycle - noop implementations
func (n *NoopMetrics) RecordConnectionEstablished(platform string, success bool, duration time.Duration) {
}
func (n *NoopMetrics) RecordConnectionDisconnected(platform string) {}
func (n *NoopMetrics) RecordConnectionLimitHit(plan string)         {}

// Token operations - noop implementations
func (n *NoopMetrics) RecordTokenRefresh(platform string, success bool, duration time.Duration) {}
func (n *NoopMetrics) RecordReauthRequired(platform, reason string)                             {}

// Health checks - noop implementations
func (n *NoopMetrics) RecordHealthCheck(platform, status string, duration time.Duration) {}

// Outbound platform API calls - noop implementations
func (n *NoopMetrics) RecordPlatformAPICall(platform, operation string, duration time.Duration) {}

// Gauge setters - noop implementations
func (n *NoopMetrics) SetConnectionsCount(status string, count int) {}

// Database operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}

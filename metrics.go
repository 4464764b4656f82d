package authcore

import internalmetrics "github.com/vaultside/authcore/internal/metrics"

// MetricID identifies one in-process counter.
type MetricID = internalmetrics.MetricID

const (
	MetricSignupSuccess          = internalmetrics.MetricSignupSuccess
	MetricSignupConflict         = internalmetrics.MetricSignupConflict
	MetricLoginSuccess           = internalmetrics.MetricLoginSuccess
	MetricLoginFailure           = internalmetrics.MetricLoginFailure
	MetricAccountLocked          = internalmetrics.MetricAccountLocked
	MetricEmailVerified          = internalmetrics.MetricEmailVerified
	MetricRefreshSuccess         = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure         = internalmetrics.MetricRefreshFailure
	MetricLogout                 = internalmetrics.MetricLogout
	MetricPasswordResetRequest   = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetCompleted = internalmetrics.MetricPasswordResetCompleted
	MetricRateLimitRejected      = internalmetrics.MetricRateLimitRejected
	MetricRateLimitFailOpen      = internalmetrics.MetricRateLimitFailOpen
	MetricAnomalyDetected        = internalmetrics.MetricAnomalyDetected
)

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// MetricsSnapshot returns the current counter values. Zero-valued when
// metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

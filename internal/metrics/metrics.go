// Package metrics provides in-process atomic counters for engine
// operations. Exporting them is the caller's concern; the engine only
// counts.
package metrics

import "sync/atomic"

// MetricID identifies one counter.
type MetricID int

const (
	MetricSignupSuccess MetricID = iota
	MetricSignupConflict
	MetricLoginSuccess
	MetricLoginFailure
	MetricAccountLocked
	MetricEmailVerified
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricPasswordResetRequest
	MetricPasswordResetCompleted
	MetricRateLimitRejected
	MetricRateLimitFailOpen
	MetricAnomalyDetected

	MetricIDCount
)

// Config controls whether counting is active. Disabled metrics are
// no-ops with no atomic traffic.
type Config struct {
	Enabled bool
}

// Metrics holds the counters. A nil *Metrics is valid and counts nothing.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

// New creates a Metrics instance; when cfg.Enabled is false every
// operation is a no-op.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Counters [MetricIDCount]uint64
}

// Get returns one counter's value from the snapshot.
func (s Snapshot) Get(id MetricID) uint64 {
	if id < 0 || id >= MetricIDCount {
		return 0
	}
	return s.Counters[id]
}

// Snapshot copies all counters at once.
func (m *Metrics) Snapshot() Snapshot {
	var s Snapshot
	if m == nil || !m.enabled {
		return s
	}
	for i := range m.counters {
		s.Counters[i] = m.counters[i].Load()
	}
	return s
}

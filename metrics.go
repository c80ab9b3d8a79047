package quizcore

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that registered a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected credentials and refused roles.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins refused by the failed login throttle.
	MetricLoginRateLimited
	// MetricSessionCreated counts sessions registered by login or role transition.
	MetricSessionCreated
	// MetricSessionConflict counts logins refused because the user already had a live session.
	MetricSessionConflict
	// MetricLogout counts logouts of a known session.
	MetricLogout
	// MetricRoleUp counts completed transitions to a more privileged role.
	MetricRoleUp
	// MetricRoleDown counts completed transitions to a less privileged role.
	MetricRoleDown
	// MetricRoleDenied counts transitions refused by the ladder or the user's entitlements.
	MetricRoleDenied
	// MetricAttemptCompleted counts persisted quiz attempts.
	MetricAttemptCompleted
	// MetricAttemptRejected counts submissions that failed validation.
	MetricAttemptRejected
	// MetricQuizCacheHit counts snapshots served from the per-user cache.
	MetricQuizCacheHit
	// MetricQuizCacheMiss counts snapshots loaded from the durable store.
	MetricQuizCacheMiss
	// MetricQuizWritten counts quiz creates, updates and deletes.
	MetricQuizWritten
	// MetricScoreLatency is the histogram of CompleteQuiz latency, lookup to persistence.
	MetricScoreLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus the score latency histogram.
// A nil or disabled *Metrics ignores every call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histograms holds
// non-cumulative bucket counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the score latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only MetricScoreLatency has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricScoreLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Disabled metrics return empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricScoreLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricScoreLatency].buckets[i])
		}
		s.Histograms[MetricScoreLatency] = buckets
	}

	return s
}

// bucketIndex maps d onto the upper bounds 1ms, 2.5ms, 5ms, 10ms, 25ms, 50ms, 100ms, +Inf.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 1000:
		return 0
	case us <= 2500:
		return 1
	case us <= 5000:
		return 2
	case us <= 10000:
		return 3
	case us <= 25000:
		return 4
	case us <= 50000:
		return 5
	case us <= 100000:
		return 6
	default:
		return 7
	}
}

package internaldefs

import (
	"github.com/MrEthical07/quizcore"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   quizcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   quizcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: quizcore.MetricLoginSuccess, Name: "quizcore_login_success_total", Help: "Successful login attempts."},
	{ID: quizcore.MetricLoginFailure, Name: "quizcore_login_failure_total", Help: "Failed login attempts."},
	{ID: quizcore.MetricLoginRateLimited, Name: "quizcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: quizcore.MetricSessionCreated, Name: "quizcore_session_created_total", Help: "Created sessions."},
	{ID: quizcore.MetricSessionConflict, Name: "quizcore_session_conflict_total", Help: "Logins refused because a session was already live."},
	{ID: quizcore.MetricLogout, Name: "quizcore_logout_total", Help: "Logout operations."},
	{ID: quizcore.MetricRoleUp, Name: "quizcore_role_up_total", Help: "Transitions to a more privileged role."},
	{ID: quizcore.MetricRoleDown, Name: "quizcore_role_down_total", Help: "Transitions to a less privileged role."},
	{ID: quizcore.MetricRoleDenied, Name: "quizcore_role_denied_total", Help: "Refused role transitions."},
	{ID: quizcore.MetricAttemptCompleted, Name: "quizcore_attempt_completed_total", Help: "Persisted quiz attempts."},
	{ID: quizcore.MetricAttemptRejected, Name: "quizcore_attempt_rejected_total", Help: "Quiz submissions rejected by validation."},
	{ID: quizcore.MetricQuizCacheHit, Name: "quizcore_quiz_cache_hit_total", Help: "Quiz snapshots served from the cache."},
	{ID: quizcore.MetricQuizCacheMiss, Name: "quizcore_quiz_cache_miss_total", Help: "Quiz snapshots loaded from the store."},
	{ID: quizcore.MetricQuizWritten, Name: "quizcore_quiz_written_total", Help: "Quiz creates, updates and deletes."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: quizcore.MetricScoreLatency, Name: "quizcore_score_latency_seconds", Help: "Quiz completion latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the engine buckets.
var HistogramBounds = []string{
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix are HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into Prometheus-style cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

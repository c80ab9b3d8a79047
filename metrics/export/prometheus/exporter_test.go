package prometheus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/quizcore"
)

type fakeSource struct {
	snapshot quizcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() quizcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

type sessionFakeSource struct {
	fakeSource
	sessions int
	err      error
}

func (f sessionFakeSource) ActiveSessions(context.Context) (int, error) { return f.sessions, f.err }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: quizcore.MetricsSnapshot{
			Counters:   map[quizcore.MetricID]uint64{},
			Histograms: map[quizcore.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: quizcore.MetricsSnapshot{
			Counters: map[quizcore.MetricID]uint64{
				quizcore.MetricLoginSuccess:     7,
				quizcore.MetricAttemptCompleted: 3,
			},
			Histograms: map[quizcore.MetricID][]uint64{
				quizcore.MetricScoreLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "quizcore_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "quizcore_attempt_completed_total 3") {
		t.Fatalf("expected attempt_completed counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "quizcore_score_latency_seconds_bucket{le=\"0.001\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "quizcore_score_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "quizcore_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
	if strings.Contains(out, "quizcore_active_sessions") {
		t.Fatalf("plain source must not report sessions, got:\n%s", out)
	}
}

func TestRenderActiveSessionsGauge(t *testing.T) {
	base := fakeSource{
		snapshot: quizcore.MetricsSnapshot{
			Counters:   map[quizcore.MetricID]uint64{quizcore.MetricLogout: 1},
			Histograms: map[quizcore.MetricID][]uint64{},
		},
	}

	out := NewPrometheusExporterFromSource(sessionFakeSource{fakeSource: base, sessions: 4}).Render()
	if !strings.Contains(out, "# TYPE quizcore_active_sessions gauge\nquizcore_active_sessions 4\n") {
		t.Fatalf("expected active sessions gauge, got:\n%s", out)
	}

	out = NewPrometheusExporterFromSource(sessionFakeSource{fakeSource: base, err: errors.New("redis down")}).Render()
	if strings.Contains(out, "quizcore_active_sessions") {
		t.Fatalf("failed count must omit the gauge, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: quizcore.MetricsSnapshot{
			Counters:   map[quizcore.MetricID]uint64{quizcore.MetricLoginSuccess: 1},
			Histograms: map[quizcore.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: quizcore.MetricsSnapshot{
			Counters: map[quizcore.MetricID]uint64{
				quizcore.MetricLoginSuccess:     1000,
				quizcore.MetricLoginFailure:     40,
				quizcore.MetricSessionCreated:   1000,
				quizcore.MetricQuizCacheHit:     9000,
				quizcore.MetricQuizCacheMiss:    300,
				quizcore.MetricAttemptCompleted: 800,
				quizcore.MetricRoleUp:           12,
			},
			Histograms: map[quizcore.MetricID][]uint64{
				quizcore.MetricScoreLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}

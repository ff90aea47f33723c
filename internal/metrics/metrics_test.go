package metrics

import (
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func gatherCounter(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		metrics := f.GetMetric()
		if len(metrics) == 0 {
			return 0
		}
		var v dto.Metric = *metrics[0]
		if v.Counter != nil {
			return v.Counter.GetValue()
		}
		if v.Gauge != nil {
			return v.Gauge.GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m := New(false)
	m.RecordCompleted(1024)
	m.RecordFailed()
	m.SetActiveJobs(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("Handler() status = %d, want 404 when telemetry disabled", rec.Code)
	}
}

func TestRecordCompletedIncrementsCountersWhenEnabled(t *testing.T) {
	m := New(true)
	m.RecordCompleted(2048)
	m.RecordCompleted(1024)

	if got := gatherCounter(t, m, "alchemist_jobs_completed_total"); got != 2 {
		t.Errorf("jobs_completed_total = %v, want 2", got)
	}
	if got := gatherCounter(t, m, "alchemist_bytes_saved_total"); got != 3072 {
		t.Errorf("bytes_saved_total = %v, want 3072", got)
	}
}

func TestRecordFailedIncrementsCounter(t *testing.T) {
	m := New(true)
	m.RecordFailed()
	m.RecordFailed()

	if got := gatherCounter(t, m, "alchemist_jobs_failed_total"); got != 2 {
		t.Errorf("jobs_failed_total = %v, want 2", got)
	}
}

func TestSetActiveJobsSetsGauge(t *testing.T) {
	m := New(true)
	m.SetActiveJobs(5)

	if got := gatherCounter(t, m, "alchemist_active_jobs"); got != 5 {
		t.Errorf("active_jobs = %v, want 5", got)
	}
}

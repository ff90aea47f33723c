package scheduler

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/metrics"
	"github.com/alchemist-io/alchemist/internal/monitor"
	"github.com/alchemist-io/alchemist/internal/store"
)

type fixedLoadMonitor struct{ load1 float64 }

func (f fixedLoadMonitor) Sample(ctx context.Context) (monitor.Sample, error) {
	return monitor.Sample{LoadAverage1: f.load1}, nil
}

func fixedSettingsWithMaxLoad(concurrentJobs int, maxLoad float64) SettingsSource {
	return func() config.EngineSettings {
		s := config.EngineSettings{}
		s.Transcode.ConcurrentJobs = concurrentJobs
		s.System.MaxLoadAverage = maxLoad
		return s
	}
}

func newTestPoolStore(t *testing.T) store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recordingRunner blocks every Run call until told to proceed, and reports
// each started/finished job id on channels so tests can observe ordering
// without sleeping.
type recordingRunner struct {
	started  chan string
	release  chan struct{}
	finished chan string
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{
		started:  make(chan string, 16),
		release:  make(chan struct{}),
		finished: make(chan string, 16),
	}
}

func (r *recordingRunner) Run(ctx context.Context, job *jobs.Job) {
	r.started <- job.ID
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	r.finished <- job.ID
}

func fixedSettings(concurrentJobs int) SettingsSource {
	return func() config.EngineSettings {
		s := config.EngineSettings{}
		s.Transcode.ConcurrentJobs = concurrentJobs
		return s
	}
}

func waitForString(t *testing.T, ch chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timed out waiting for value")
		return ""
	}
}

func TestPool_ClaimsAndTracksInFlight(t *testing.T) {
	st := newTestPoolStore(t)
	ctx := context.Background()
	job, err := st.InsertJob(ctx, "/media/a.mkv", "hash-a", 0)
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	runner := newRecordingRunner()
	pool := NewPool(st, runner, NewEngineState(), NewActiveHoursEvaluator(nil), fixedSettings(1))
	pool.TickInterval = 10 * time.Millisecond
	pool.Start(ctx)
	defer pool.Stop()

	started := waitForString(t, runner.started, time.Second)
	if started != job.ID {
		t.Errorf("started job %q, want %q", started, job.ID)
	}
	if pool.Status().Active != 1 {
		t.Errorf("Active = %d, want 1 while job in flight", pool.Status().Active)
	}

	close(runner.release)
	waitForString(t, runner.finished, time.Second)
}

func TestPool_RespectsConcurrentJobsLimit(t *testing.T) {
	st := newTestPoolStore(t)
	ctx := context.Background()
	if _, err := st.InsertJob(ctx, "/media/a.mkv", "hash-a", 0); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if _, err := st.InsertJob(ctx, "/media/b.mkv", "hash-b", 0); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	runner := newRecordingRunner()
	pool := NewPool(st, runner, NewEngineState(), NewActiveHoursEvaluator(nil), fixedSettings(1))
	pool.TickInterval = 10 * time.Millisecond
	pool.Start(ctx)
	defer pool.Stop()

	waitForString(t, runner.started, time.Second)

	select {
	case id := <-runner.started:
		t.Fatalf("second job %q started while concurrent_jobs=1 limit was reached", id)
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	waitForString(t, runner.finished, time.Second)
	waitForString(t, runner.started, time.Second)
}

func TestPool_PausedSkipsClaimLoop(t *testing.T) {
	st := newTestPoolStore(t)
	ctx := context.Background()
	if _, err := st.InsertJob(ctx, "/media/a.mkv", "hash-a", 0); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	runner := newRecordingRunner()
	state := NewEngineState()
	state.Pause()
	pool := NewPool(st, runner, state, NewActiveHoursEvaluator(nil), fixedSettings(1))
	pool.TickInterval = 10 * time.Millisecond
	pool.Start(ctx)
	defer pool.Stop()

	select {
	case id := <-runner.started:
		t.Fatalf("job %q started while paused", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPool_CancelJobCancelsRunnerContext(t *testing.T) {
	st := newTestPoolStore(t)
	ctx := context.Background()
	if _, err := st.InsertJob(ctx, "/media/a.mkv", "hash-a", 0); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	runner := newRecordingRunner()
	pool := NewPool(st, runner, NewEngineState(), NewActiveHoursEvaluator(nil), fixedSettings(1))
	pool.TickInterval = 10 * time.Millisecond
	pool.Start(ctx)
	defer pool.Stop()

	jobID := waitForString(t, runner.started, time.Second)
	if !pool.CancelJob(jobID) {
		t.Fatal("CancelJob() = false for in-flight job")
	}
	waitForString(t, runner.finished, time.Second)
}

func TestPool_CancelJobUnknownReturnsFalse(t *testing.T) {
	st := newTestPoolStore(t)
	pool := NewPool(st, newRecordingRunner(), NewEngineState(), NewActiveHoursEvaluator(nil), fixedSettings(1))
	if pool.CancelJob("nonexistent") {
		t.Error("CancelJob() = true for a job never claimed")
	}
}

func TestPool_SkipsClaimWhenLoadAboveMax(t *testing.T) {
	st := newTestPoolStore(t)
	ctx := context.Background()
	if _, err := st.InsertJob(ctx, "/media/a.mkv", "hash-a", 0); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	runner := newRecordingRunner()
	pool := NewPool(st, runner, NewEngineState(), NewActiveHoursEvaluator(nil), fixedSettingsWithMaxLoad(1, 2.0))
	pool.Monitor = fixedLoadMonitor{load1: 5.0}
	pool.TickInterval = 10 * time.Millisecond
	pool.Start(ctx)
	defer pool.Stop()

	select {
	case id := <-runner.started:
		t.Fatalf("job %q started while host load exceeded max_load_average", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPool_ClaimsWhenLoadBelowMax(t *testing.T) {
	st := newTestPoolStore(t)
	ctx := context.Background()
	if _, err := st.InsertJob(ctx, "/media/a.mkv", "hash-a", 0); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	runner := newRecordingRunner()
	pool := NewPool(st, runner, NewEngineState(), NewActiveHoursEvaluator(nil), fixedSettingsWithMaxLoad(1, 2.0))
	pool.Monitor = fixedLoadMonitor{load1: 0.5}
	pool.TickInterval = 10 * time.Millisecond
	pool.Start(ctx)
	defer pool.Stop()

	waitForString(t, runner.started, time.Second)
	close(runner.release)
	waitForString(t, runner.finished, time.Second)
}

func TestPool_ReportsActiveJobsToMetrics(t *testing.T) {
	st := newTestPoolStore(t)
	ctx := context.Background()
	if _, err := st.InsertJob(ctx, "/media/a.mkv", "hash-a", 0); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	m := metrics.New(true)
	runner := newRecordingRunner()
	pool := NewPool(st, runner, NewEngineState(), NewActiveHoursEvaluator(nil), fixedSettings(1))
	pool.Metrics = m
	pool.TickInterval = 10 * time.Millisecond
	pool.Start(ctx)
	defer pool.Stop()

	waitForString(t, runner.started, time.Second)
	if pool.Status().Active != 1 {
		t.Fatalf("Active = %d, want 1 while job in flight", pool.Status().Active)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "alchemist_active_jobs 1") {
		t.Errorf("/metrics output missing active_jobs=1 while job in flight: %s", rec.Body.String())
	}

	close(runner.release)
	waitForString(t, runner.finished, time.Second)
}

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/store"
)

// fakeStore is a minimal in-memory store.Store satisfying the interface the
// orchestrator actually exercises, recording every transition/decision/stat
// write so tests can assert on the sequence without a real database.
type fakeStore struct {
	mu sync.Mutex

	transitions []fakeTransition
	decisions   []fakeDecision
	stats       []*jobs.EncodeStats
	progress    []float64

	transitionErr error // if set, every Transition call fails with this
}

type fakeTransition struct {
	jobID      string
	from, to   jobs.Status
	reason     string
}

type fakeDecision struct {
	jobID  string
	action jobs.DecisionAction
	reason string
}

func (f *fakeStore) Transition(ctx context.Context, jobID string, from, to jobs.Status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionErr != nil {
		return f.transitionErr
	}
	f.transitions = append(f.transitions, fakeTransition{jobID, from, to, reason})
	return nil
}

func (f *fakeStore) RecordDecision(ctx context.Context, jobID string, action jobs.DecisionAction, reason string) (*jobs.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, fakeDecision{jobID, action, reason})
	return &jobs.Decision{JobID: jobID, Action: action, Reason: reason}, nil
}

func (f *fakeStore) RecordEncodeStats(ctx context.Context, stats *jobs.EncodeStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, stats)
	return nil
}

func (f *fakeStore) MarkProgress(ctx context.Context, jobID string, pct float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, pct)
	return nil
}

func (f *fakeStore) lastTransition() (fakeTransition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transitions) == 0 {
		return fakeTransition{}, false
	}
	return f.transitions[len(f.transitions)-1], true
}

func (f *fakeStore) lastDecision() (fakeDecision, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.decisions) == 0 {
		return fakeDecision{}, false
	}
	return f.decisions[len(f.decisions)-1], true
}

// Everything below is unused by the orchestrator and only exists to satisfy
// store.Store; each stub fails loudly if a test accidentally exercises it.

func (f *fakeStore) InsertJob(ctx context.Context, inputPath, mtimeHash string, priority int) (*jobs.Job, error) {
	return nil, fmt.Errorf("fakeStore: InsertJob not supported")
}
func (f *fakeStore) ClaimNextEligible(ctx context.Context, limit int, now time.Time, excludedFingerprints []string) ([]*jobs.Job, error) {
	return nil, fmt.Errorf("fakeStore: ClaimNextEligible not supported")
}
func (f *fakeStore) RestartJob(ctx context.Context, jobID string) error {
	return fmt.Errorf("fakeStore: RestartJob not supported")
}
func (f *fakeStore) RecordLog(ctx context.Context, level, jobID, message string) error { return nil }
func (f *fakeStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	return nil, fmt.Errorf("fakeStore: GetJob not supported")
}
func (f *fakeStore) GetJobDetail(ctx context.Context, id string) (*store.JobDetail, error) {
	return nil, fmt.Errorf("fakeStore: GetJobDetail not supported")
}
func (f *fakeStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*jobs.Job, error) {
	return nil, fmt.Errorf("fakeStore: ListJobs not supported")
}
func (f *fakeStore) DeleteJob(ctx context.Context, id string) error {
	return fmt.Errorf("fakeStore: DeleteJob not supported")
}
func (f *fakeStore) Stats(ctx context.Context) (jobs.Stats, error) { return jobs.Stats{}, nil }
func (f *fakeStore) DailyStats(ctx context.Context, days int) ([]jobs.DailyStat, error) {
	return nil, nil
}
func (f *fakeStore) RecentLogs(ctx context.Context, limit, offset int) ([]*jobs.LogEntry, error) {
	return nil, nil
}
func (f *fakeStore) ClearLogs(ctx context.Context) error           { return nil }
func (f *fakeStore) PruneLogs(ctx context.Context, keep int) error { return nil }
func (f *fakeStore) ListWatchDirs(ctx context.Context) ([]*jobs.WatchDir, error) { return nil, nil }
func (f *fakeStore) AddWatchDir(ctx context.Context, wd *jobs.WatchDir) (*jobs.WatchDir, error) {
	return nil, fmt.Errorf("fakeStore: AddWatchDir not supported")
}
func (f *fakeStore) DeleteWatchDir(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) ListScheduleWindows(ctx context.Context) ([]*jobs.ScheduleWindow, error) {
	return nil, nil
}
func (f *fakeStore) AddScheduleWindow(ctx context.Context, w *jobs.ScheduleWindow) (*jobs.ScheduleWindow, error) {
	return nil, fmt.Errorf("fakeStore: AddScheduleWindow not supported")
}
func (f *fakeStore) DeleteScheduleWindow(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) ListNotificationTargets(ctx context.Context) ([]*jobs.NotificationTarget, error) {
	return nil, nil
}
func (f *fakeStore) AddNotificationTarget(ctx context.Context, t *jobs.NotificationTarget) (*jobs.NotificationTarget, error) {
	return nil, fmt.Errorf("fakeStore: AddNotificationTarget not supported")
}
func (f *fakeStore) DeleteNotificationTarget(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) GetSettings(ctx context.Context) (string, error)             { return "", nil }
func (f *fakeStore) SaveSettings(ctx context.Context, yamlBlob string) error     { return nil }
func (f *fakeStore) SchemaVersion(ctx context.Context) (int, error)             { return 0, nil }
func (f *fakeStore) Close() error                                               { return nil }

var _ store.Store = (*fakeStore)(nil)

// Package store defines the persistence interface for the transcoding
// pipeline core and its SQLite-backed implementation.
package store

import (
	"context"
	"time"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Status   jobs.Status // zero value = any status
	Search   string      // substring match on input_path, case-insensitive
	Limit    int
	Offset   int
}

// JobDetail joins a job with its latest decision and encode stats for the
// per-job detail view.
type JobDetail struct {
	Job             *jobs.Job
	LatestDecision  *jobs.Decision
	EncodeStats     *jobs.EncodeStats
}

// Store is the persistence interface. Implementations must be safe for
// concurrent use and must enforce the job state machine's transition
// table.
type Store interface {
	// InsertJob is an idempotent upsert keyed by input_path: a matching
	// mtime_hash is a no-op; a differing one resets the job to queued and
	// preserves attempt_count.
	InsertJob(ctx context.Context, inputPath, mtimeHash string, priority int) (*jobs.Job, error)

	// ClaimNextEligible atomically moves up to limit queued jobs to
	// claimed, ordered by priority DESC, created_at ASC, id ASC, skipping
	// any whose mtime_hash is in excludedFingerprints.
	ClaimNextEligible(ctx context.Context, limit int, now time.Time, excludedFingerprints []string) ([]*jobs.Job, error)

	// Transition enforces the legal-transition table; returns
	// jobs.ErrInvalidTransition on a disallowed edge.
	Transition(ctx context.Context, jobID string, from, to jobs.Status, reason string) error

	// RestartJob resets a terminal job directly to queued, incrementing
	// attempt_count. Returns jobs.ErrInvalidTransition if the job isn't
	// terminal.
	RestartJob(ctx context.Context, jobID string) error

	RecordDecision(ctx context.Context, jobID string, action jobs.DecisionAction, reason string) (*jobs.Decision, error)
	RecordEncodeStats(ctx context.Context, stats *jobs.EncodeStats) error
	RecordLog(ctx context.Context, level, jobID, message string) error

	// MarkProgress coalesces progress updates, clamping pct into
	// [previous, 100].
	MarkProgress(ctx context.Context, jobID string, pct float64) error

	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	GetJobDetail(ctx context.Context, id string) (*JobDetail, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*jobs.Job, error)
	DeleteJob(ctx context.Context, id string) error

	Stats(ctx context.Context) (jobs.Stats, error)
	DailyStats(ctx context.Context, days int) ([]jobs.DailyStat, error)
	RecentLogs(ctx context.Context, limit, offset int) ([]*jobs.LogEntry, error)
	ClearLogs(ctx context.Context) error
	PruneLogs(ctx context.Context, keep int) error

	ListWatchDirs(ctx context.Context) ([]*jobs.WatchDir, error)
	AddWatchDir(ctx context.Context, wd *jobs.WatchDir) (*jobs.WatchDir, error)
	DeleteWatchDir(ctx context.Context, id int64) error

	ListScheduleWindows(ctx context.Context) ([]*jobs.ScheduleWindow, error)
	AddScheduleWindow(ctx context.Context, w *jobs.ScheduleWindow) (*jobs.ScheduleWindow, error)
	DeleteScheduleWindow(ctx context.Context, id int64) error

	ListNotificationTargets(ctx context.Context) ([]*jobs.NotificationTarget, error)
	AddNotificationTarget(ctx context.Context, t *jobs.NotificationTarget) (*jobs.NotificationTarget, error)
	DeleteNotificationTarget(ctx context.Context, id int64) error

	// GetSettings/SaveSettings persist the engine settings blob that
	// orchestrator attempts snapshot at claim time.
	GetSettings(ctx context.Context) (string, error)
	SaveSettings(ctx context.Context, yamlBlob string) error

	SchemaVersion(ctx context.Context) (int, error)

	Close() error
}

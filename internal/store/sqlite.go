package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alchemist-io/alchemist/internal/jobs"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	input_path TEXT NOT NULL UNIQUE,
	output_path TEXT,
	status TEXT NOT NULL,
	mtime_hash TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	progress REAL NOT NULL DEFAULT 0,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	action TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS encode_stats (
	job_id TEXT PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE,
	input_size_bytes INTEGER NOT NULL,
	output_size_bytes INTEGER NOT NULL,
	compression_ratio REAL NOT NULL,
	encode_time_seconds REAL NOT NULL,
	encode_speed REAL NOT NULL,
	avg_bitrate_kbps REAL NOT NULL,
	vmaf_score REAL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS watch_dirs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	recursive INTEGER NOT NULL DEFAULT 1,
	enabled INTEGER NOT NULL DEFAULT 1,
	extensions TEXT
);

CREATE TABLE IF NOT EXISTS schedule_windows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	days_of_week TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS notification_targets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	target_type TEXT NOT NULL,
	endpoint_url TEXT NOT NULL,
	auth_token TEXT,
	events TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS log_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	level TEXT NOT NULL,
	job_id TEXT,
	message TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schema_info (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_claim_order ON jobs(status, priority DESC, created_at ASC, id ASC);
CREATE INDEX IF NOT EXISTS idx_log_entries_created_at ON log_entries(created_at);
`

// SQLiteStore implements Store using SQLite. Writes are serialized through mu
// because SQLite allows only one writer at a time; reads use RLock so
// concurrent API handlers don't block each other behind a single in-flight
// write.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath, applies
// the schema, and runs any pending additive migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// runMigrations records schema_version on a fresh database and applies any
// additive ALTER TABLE steps gated on the stored version. schemaVersion is 1
// today; future columns are added here behind a "version < N" gate, never by
// editing the CREATE TABLE above, so existing installs upgrade in place.
func runMigrations(db *sql.DB) error {
	var versionStr string
	err := db.QueryRow(`SELECT value FROM schema_info WHERE key = 'schema_version'`).Scan(&versionStr)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO schema_info (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(schemaVersion))
		return err
	}
	if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	// No migrations beyond v1 yet; a future bump adds "if version < N"
	// blocks of ALTER TABLE statements here, then rewrites the stored value.
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v int
	err := s.db.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM schema_info WHERE key = 'schema_version'`).Scan(&v)
	return v, err
}

// InsertJob is the idempotent upsert described in Store.
func (s *SQLiteStore) InsertJob(ctx context.Context, inputPath, mtimeHash string, priority int) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getJobByInputPathLocked(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if existing != nil {
		if existing.MTimeHash == mtimeHash {
			return existing, nil
		}
		_, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET mtime_hash = ?, status = ?, progress = 0, updated_at = ?
			WHERE id = ?
		`, mtimeHash, string(jobs.StatusQueued), formatTime(now), existing.ID)
		if err != nil {
			return nil, err
		}
		existing.MTimeHash = mtimeHash
		existing.Status = jobs.StatusQueued
		existing.Progress = 0
		existing.UpdatedAt = now
		return existing, nil
	}

	job := &jobs.Job{
		ID:        uuid.NewString(),
		InputPath: inputPath,
		Status:    jobs.StatusQueued,
		MTimeHash: mtimeHash,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, input_path, status, mtime_hash, priority, progress, attempt_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
	`, job.ID, job.InputPath, string(job.Status), job.MTimeHash, job.Priority, formatTime(now), formatTime(now))
	if err != nil {
		// A concurrent insert of the same input_path lost the race; fetch
		// what the winner wrote instead of surfacing a UNIQUE violation.
		if existing, getErr := s.getJobByInputPathLocked(ctx, inputPath); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) getJobByInputPathLocked(ctx context.Context, inputPath string) (*jobs.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE input_path = ?`, inputPath)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// ClaimNextEligible atomically claims up to limit queued jobs.
func (s *SQLiteStore) ClaimNextEligible(ctx context.Context, limit int, now time.Time, excludedFingerprints []string) ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT id FROM jobs
		WHERE status = ?` + excludeClause(excludedFingerprints) + `
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT ?
	`
	args := append([]any{string(jobs.StatusQueued)}, excludeArgs(excludedFingerprints)...)
	args = append(args, limit)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	claimed := make([]*jobs.Job, 0, len(ids))
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?
		`, string(jobs.StatusClaimed), formatTime(now), id); err != nil {
			return nil, err
		}
		row := tx.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE id = ?`, id)
		job, err := scanJob(row)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func excludeClause(fingerprints []string) string {
	if len(fingerprints) == 0 {
		return ""
	}
	placeholders := ""
	for i := range fingerprints {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
	}
	return " AND mtime_hash NOT IN (" + placeholders + ")"
}

func excludeArgs(fingerprints []string) []any {
	args := make([]any, len(fingerprints))
	for i, f := range fingerprints {
		args[i] = f
	}
	return args
}

// Transition enforces jobs.CanTransition and records the new status.
func (s *SQLiteStore) Transition(ctx context.Context, jobID string, from, to jobs.Status, reason string) error {
	if !jobs.CanTransition(from, to) {
		return jobs.InvalidTransitionError(jobID, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	progress := (*float64)(nil)
	if to == jobs.StatusCompleted {
		v := 100.0
		progress = &v
	} else if to.IsTerminal() {
		v := 0.0
		progress = &v
	}

	now := formatTime(time.Now().UTC())
	var err error
	if progress != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, progress = ?, updated_at = ? WHERE id = ? AND status = ?
		`, string(to), *progress, now, jobID, string(from))
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`, string(to), now, jobID, string(from))
	}
	if err != nil {
		return err
	}

	if reason != "" {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO log_entries (level, job_id, message, created_at) VALUES ('info', ?, ?, ?)
		`, jobID, fmt.Sprintf("%s -> %s: %s", from, to, reason), now); err != nil {
			return err
		}
	}
	return nil
}

// RestartJob resets a terminal job to queued directly, bypassing the legal
// transition table, and increments attempt_count.
func (s *SQLiteStore) RestartJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.getJobLocked(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return jobs.NotFoundError(jobID)
	}
	if !job.Status.IsTerminal() {
		return jobs.InvalidTransitionError(jobID, job.Status, jobs.StatusQueued)
	}

	now := formatTime(time.Now().UTC())
	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = 0, attempt_count = attempt_count + 1, updated_at = ?
		WHERE id = ?
	`, string(jobs.StatusQueued), now, jobID)
	return err
}

// MarkProgress clamps pct to be non-decreasing relative to the stored value.
func (s *SQLiteStore) MarkProgress(ctx context.Context, jobID string, pct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = MAX(progress, MIN(?, 100)), updated_at = ? WHERE id = ?
	`, pct, formatTime(time.Now().UTC()), jobID)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJobLocked(ctx, id)
}

func (s *SQLiteStore) getJobLocked(ctx context.Context, id string) (*jobs.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := jobSelectColumns + ` FROM jobs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		query += ` AND input_path LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}
	query += ` ORDER BY priority DESC, created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			r = append(r, '\\')
		}
		r = append(r, s[i])
	}
	return string(r)
}

const jobSelectColumns = `
	SELECT id, input_path, output_path, status, mtime_hash, priority, progress, attempt_count, created_at, updated_at
`

func scanJob(row interface{ Scan(...any) error }) (*jobs.Job, error) {
	var job jobs.Job
	var outputPath sql.NullString
	var status string
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID, &job.InputPath, &outputPath, &status, &job.MTimeHash,
		&job.Priority, &job.Progress, &job.AttemptCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.OutputPath = outputPath.String
	job.Status = jobs.Status(status)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

func (s *SQLiteStore) RecordDecision(ctx context.Context, jobID string, action jobs.DecisionAction, reason string) (*jobs.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (job_id, action, reason, created_at) VALUES (?, ?, ?, ?)
	`, jobID, string(action), reason, formatTime(now))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &jobs.Decision{ID: id, JobID: jobID, Action: action, Reason: reason, CreatedAt: now}, nil
}

func (s *SQLiteStore) latestDecisionLocked(ctx context.Context, jobID string) (*jobs.Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, action, reason, created_at FROM decisions
		WHERE job_id = ? ORDER BY id DESC LIMIT 1
	`, jobID)
	var d jobs.Decision
	var action, createdAt string
	err := row.Scan(&d.ID, &d.JobID, &action, &d.Reason, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Action = jobs.DecisionAction(action)
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

func (s *SQLiteStore) RecordEncodeStats(ctx context.Context, stats *jobs.EncodeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var vmaf any
	if stats.VMafScore != nil {
		vmaf = *stats.VMafScore
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO encode_stats (
			job_id, input_size_bytes, output_size_bytes, compression_ratio,
			encode_time_seconds, encode_speed, avg_bitrate_kbps, vmaf_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stats.JobID, stats.InputSizeBytes, stats.OutputSizeBytes, stats.CompressionRatio,
		stats.EncodeTimeSeconds, stats.EncodeSpeed, stats.AvgBitrateKbps, vmaf, formatTime(now))
	return err
}

func (s *SQLiteStore) encodeStatsLocked(ctx context.Context, jobID string) (*jobs.EncodeStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, input_size_bytes, output_size_bytes, compression_ratio,
			encode_time_seconds, encode_speed, avg_bitrate_kbps, vmaf_score, created_at
		FROM encode_stats WHERE job_id = ?
	`, jobID)
	var st jobs.EncodeStats
	var vmaf sql.NullFloat64
	var createdAt string
	err := row.Scan(&st.JobID, &st.InputSizeBytes, &st.OutputSizeBytes, &st.CompressionRatio,
		&st.EncodeTimeSeconds, &st.EncodeSpeed, &st.AvgBitrateKbps, &vmaf, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if vmaf.Valid {
		st.VMafScore = &vmaf.Float64
	}
	st.CreatedAt = parseTime(createdAt)
	return &st, nil
}

func (s *SQLiteStore) GetJobDetail(ctx context.Context, id string) (*JobDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, err := s.getJobLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobs.NotFoundError(id)
	}
	decision, err := s.latestDecisionLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.encodeStatsLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: job, LatestDecision: decision, EncodeStats: stats}, nil
}

func (s *SQLiteStore) RecordLog(ctx context.Context, level, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobIDArg any
	if jobID != "" {
		jobIDArg = jobID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log_entries (level, job_id, message, created_at) VALUES (?, ?, ?, ?)
	`, level, jobIDArg, message, formatTime(time.Now().UTC()))
	return err
}

func (s *SQLiteStore) RecentLogs(ctx context.Context, limit, offset int) ([]*jobs.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, job_id, message, created_at FROM log_entries
		ORDER BY id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*jobs.LogEntry
	for rows.Next() {
		var e jobs.LogEntry
		var jobID sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Level, &jobID, &e.Message, &createdAt); err != nil {
			return nil, err
		}
		e.JobID = jobID.String
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearLogs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM log_entries`)
	return err
}

// PruneLogs deletes every log_entries row older than the keep most recent
// ones, bounding table growth for a process that runs indefinitely.
func (s *SQLiteStore) PruneLogs(ctx context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM log_entries WHERE id NOT IN (
			SELECT id FROM log_entries ORDER BY id DESC LIMIT ?
		)
	`, keep)
	return err
}

func (s *SQLiteStore) ListWatchDirs(ctx context.Context) ([]*jobs.WatchDir, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, path, recursive, enabled, extensions FROM watch_dirs ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*jobs.WatchDir
	for rows.Next() {
		var wd jobs.WatchDir
		var recursive, enabled int
		var extensions sql.NullString
		if err := rows.Scan(&wd.ID, &wd.Path, &recursive, &enabled, &extensions); err != nil {
			return nil, err
		}
		wd.Recursive = recursive != 0
		wd.Enabled = enabled != 0
		if extensions.Valid && extensions.String != "" {
			wd.Extensions = strings.Split(extensions.String, ",")
		}
		out = append(out, &wd)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddWatchDir(ctx context.Context, wd *jobs.WatchDir) (*jobs.WatchDir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var extensions any
	if len(wd.Extensions) > 0 {
		extensions = strings.Join(wd.Extensions, ",")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_dirs (path, recursive, enabled, extensions) VALUES (?, ?, ?, ?)
	`, wd.Path, boolToInt(wd.Recursive), boolToInt(wd.Enabled), extensions)
	if err != nil {
		return nil, fmt.Errorf("add watch dir: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *wd
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) DeleteWatchDir(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM watch_dirs WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListScheduleWindows(ctx context.Context) ([]*jobs.ScheduleWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, start_time, end_time, days_of_week, enabled FROM schedule_windows ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*jobs.ScheduleWindow
	for rows.Next() {
		var w jobs.ScheduleWindow
		var days string
		var enabled int
		if err := rows.Scan(&w.ID, &w.StartTime, &w.EndTime, &days, &enabled); err != nil {
			return nil, err
		}
		w.Enabled = enabled != 0
		w.DaysOfWeek = parseIntCSV(days)
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddScheduleWindow(ctx context.Context, w *jobs.ScheduleWindow) (*jobs.ScheduleWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_windows (start_time, end_time, days_of_week, enabled) VALUES (?, ?, ?, ?)
	`, w.StartTime, w.EndTime, formatIntCSV(w.DaysOfWeek), boolToInt(w.Enabled))
	if err != nil {
		return nil, fmt.Errorf("add schedule window: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *w
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) DeleteScheduleWindow(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedule_windows WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListNotificationTargets(ctx context.Context) ([]*jobs.NotificationTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, target_type, endpoint_url, auth_token, events, enabled FROM notification_targets ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*jobs.NotificationTarget
	for rows.Next() {
		var t jobs.NotificationTarget
		var targetType, events string
		var authToken sql.NullString
		var enabled int
		if err := rows.Scan(&t.ID, &t.Name, &targetType, &t.EndpointURL, &authToken, &events, &enabled); err != nil {
			return nil, err
		}
		t.TargetType = jobs.NotificationTargetType(targetType)
		t.AuthToken = authToken.String
		t.Enabled = enabled != 0
		for _, e := range strings.Split(events, ",") {
			if e != "" {
				t.Events = append(t.Events, jobs.NotificationEvent(e))
			}
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddNotificationTarget(ctx context.Context, t *jobs.NotificationTarget) (*jobs.NotificationTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]string, len(t.Events))
	for i, e := range t.Events {
		events[i] = string(e)
	}
	var authToken any
	if t.AuthToken != "" {
		authToken = t.AuthToken
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_targets (name, target_type, endpoint_url, auth_token, events, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.Name, string(t.TargetType), t.EndpointURL, authToken, strings.Join(events, ","), boolToInt(t.Enabled))
	if err != nil {
		return nil, fmt.Errorf("add notification target: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *t
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) DeleteNotificationTarget(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM notification_targets WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) GetSettings(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'engine_settings'`).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, yamlBlob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ('engine_settings', ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, yamlBlob)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseIntCSV(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func formatIntCSV(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

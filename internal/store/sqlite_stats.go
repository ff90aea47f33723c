package store

import (
	"context"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

// Stats aggregates live job counts and lifetime bytes saved for the
// dashboard summary. Bytes saved is computed from encode_stats rather than
// a running counter so it stays consistent with individual job records
// even after a restart re-encodes a previously completed job.
func (s *SQLiteStore) Stats(ctx context.Context) (jobs.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats jobs.Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('claimed','analyzing','encoding','verifying') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'reverted' THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM jobs
	`)
	if err := row.Scan(&stats.Queued, &stats.Active, &stats.Completed, &stats.Failed,
		&stats.Cancelled, &stats.Skipped, &stats.Reverted, &stats.Total); err != nil {
		return stats, err
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_size_bytes - output_size_bytes), 0) FROM encode_stats
	`).Scan(&stats.BytesSaved)
	return stats, err
}

// DailyStats returns the trailing N days of completed-job aggregates,
// grouping encode_stats rows of completed jobs by the day the stats row
// was recorded.
func (s *SQLiteStore) DailyStats(ctx context.Context, days int) ([]jobs.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days <= 0 {
		days = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			substr(es.created_at, 1, 10) AS day,
			COUNT(*) AS jobs_completed,
			COALESCE(SUM(es.input_size_bytes - es.output_size_bytes), 0) AS bytes_saved,
			COALESCE(AVG(es.compression_ratio), 0) AS avg_ratio
		FROM encode_stats es
		JOIN jobs j ON j.id = es.job_id AND j.status = 'completed'
		WHERE es.created_at >= datetime('now', printf('-%d days', ?))
		GROUP BY day
		ORDER BY day ASC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []jobs.DailyStat
	for rows.Next() {
		var d jobs.DailyStat
		if err := rows.Scan(&d.Day, &d.JobsCompleted, &d.BytesSaved, &d.AvgCompressionRatio); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Package rollup runs the periodic maintenance jobs the pipeline needs to
// keep running well once it's been up for a long time: a daily stats
// summary and a log-table sweep that bounds log_entries growth.
package rollup

import (
	"context"
	"fmt"

	"github.com/alchemist-io/alchemist/internal/logger"
	"github.com/alchemist-io/alchemist/internal/store"
	"github.com/robfig/cron/v3"
)

// defaultLogRetention is how many of the most recent log_entries rows
// survive a sweep.
const defaultLogRetention = 10000

// Runner owns the in-process cron schedule for daily rollup and log
// pruning.
type Runner struct {
	Store        store.Store
	LogRetention int

	cron *cron.Cron
}

// NewRunner builds a Runner. A LogRetention of 0 uses defaultLogRetention.
func NewRunner(st store.Store, logRetention int) *Runner {
	if logRetention <= 0 {
		logRetention = defaultLogRetention
	}
	return &Runner{Store: st, LogRetention: logRetention}
}

// Start registers the daily rollup and hourly log sweep and begins running
// them in the background. Call Stop to halt it.
func (r *Runner) Start() error {
	r.cron = cron.New()

	if _, err := r.cron.AddFunc("@daily", func() {
		r.runDailyRollup(context.Background())
	}); err != nil {
		return fmt.Errorf("rollup: schedule daily rollup: %w", err)
	}
	if _, err := r.cron.AddFunc("@hourly", func() {
		r.runLogSweep(context.Background())
	}); err != nil {
		return fmt.Errorf("rollup: schedule log sweep: %w", err)
	}

	r.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for any running job to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// runDailyRollup writes a one-line summary of the previous day's completed
// jobs to the log table. DailyStats itself is always computed live from
// encode_stats (see internal/store), so this isn't materializing a table:
// it turns that live aggregation into something a reader (or notification)
// can see without re-running the aggregation query.
func (r *Runner) runDailyRollup(ctx context.Context) {
	daily, err := r.Store.DailyStats(ctx, 1)
	if err != nil {
		logger.Warn("rollup: daily stats query failed", "error", err)
		return
	}
	if len(daily) == 0 {
		return
	}
	d := daily[len(daily)-1]
	message := fmt.Sprintf("daily rollup %s: %d jobs completed, %d bytes saved, avg ratio %.2f",
		d.Day, d.JobsCompleted, d.BytesSaved, d.AvgCompressionRatio)
	if err := r.Store.RecordLog(ctx, "info", "", message); err != nil {
		logger.Warn("rollup: record daily rollup log failed", "error", err)
	}
}

// runLogSweep bounds log_entries to LogRetention most recent rows.
func (r *Runner) runLogSweep(ctx context.Context) {
	if err := r.Store.PruneLogs(ctx, r.LogRetention); err != nil {
		logger.Warn("rollup: log sweep failed", "error", err)
	}
}

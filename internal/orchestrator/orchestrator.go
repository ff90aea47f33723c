// Package orchestrator drives one claimed job through Probe → Decide →
// Encode → Verify → Commit/Revert, persisting every transition and Decision
// along the way. It implements internal/scheduler's Runner interface; the
// Pool owns the claim loop, this package owns everything that happens to a
// job after it's claimed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alchemist-io/alchemist/internal/analyzer"
	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/encoder"
	"github.com/alchemist-io/alchemist/internal/encoder/vmaf"
	"github.com/alchemist-io/alchemist/internal/events"
	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/logger"
	"github.com/alchemist-io/alchemist/internal/metrics"
	"github.com/alchemist-io/alchemist/internal/notify"
	"github.com/alchemist-io/alchemist/internal/store"
)

// probeTimeout bounds the probe child process; expiry is treated as a probe
// failure rather than hanging the claim slot indefinitely.
const probeTimeout = 60 * time.Second

// progressThrottle is the minimum interval between coalesced progress
// writes to the store and the event bus.
const progressThrottle = 100 * time.Millisecond

// Orchestrator is the per-job driver. One instance is shared by every
// concurrent job attempt; all per-attempt state lives in the attempt struct.
type Orchestrator struct {
	Store      store.Store
	Prober     *analyzer.Prober
	Registry   *encoder.Registry
	Transcoder *encoder.Transcoder
	Detector   *vmaf.Detector
	Bus        *events.Bus
	Notifier   *notify.Dispatcher // optional; nil disables delivery
	Metrics    *metrics.Metrics   // optional; nil disables telemetry
	Settings   func() config.EngineSettings

	FFmpegPath string
	TempDirFor func(sourcePath string) string
}

// Run implements scheduler.Runner. It never returns an error: every failure
// mode is recorded as a Decision and a terminal state transition instead.
func (o *Orchestrator) Run(ctx context.Context, job *jobs.Job) {
	r := &attempt{
		o:        o,
		job:      job,
		settings: o.Settings(),
	}
	r.run(ctx)
}

// attempt holds the mutable state of one job's trip through the pipeline.
// A fresh attempt is constructed per Run call so concurrent jobs never
// share state.
type attempt struct {
	o        *Orchestrator
	job      *jobs.Job
	settings config.EngineSettings
	jobLog   *slog.Logger

	tempPath   string
	outputPath string

	achievedVMafScore *float64 // set by a smartshrink search; nil if not used
}

// log returns a logger scoped to this attempt's job ID, so every line it
// emits is already attributed without each call site re-passing "job".
// Lazily initialized so an attempt built directly (as tests do) doesn't
// need to wire it up first.
func (a *attempt) log() *slog.Logger {
	if a.jobLog == nil {
		a.jobLog = logger.With("job", a.job.ID)
	}
	return a.jobLog
}

func (a *attempt) publish(kind events.Kind, payload interface{}) {
	a.o.Bus.Publish(events.Event{Kind: kind, JobID: a.job.ID, Timestamp: time.Now(), Payload: payload})
}

func (a *attempt) transition(ctx context.Context, from, to jobs.Status, reason string) error {
	if err := a.o.Store.Transition(ctx, a.job.ID, from, to, reason); err != nil {
		return err
	}
	a.publish(events.KindStatus, map[string]string{"status": string(to), "reason": reason})
	return nil
}

func (a *attempt) decide(ctx context.Context, action jobs.DecisionAction, reason string) {
	if _, err := a.o.Store.RecordDecision(ctx, a.job.ID, action, reason); err != nil {
		a.log().Warn("orchestrator: record decision failed", "error", err)
	}
	a.publish(events.KindDecision, map[string]string{"action": string(action), "reason": reason})
}

// run executes the full state machine for one job. Every exit path either
// reaches a terminal transition or, on an unexpected store error, leaves the
// job in place for the next restart (the store call itself already failed,
// so there is nothing further to persist).
func (a *attempt) run(ctx context.Context) {
	if err := a.transition(ctx, jobs.StatusClaimed, jobs.StatusAnalyzing, ""); err != nil {
		a.log().Error("orchestrator: claimed->analyzing failed", "error", err)
		return
	}

	if a.cancelled(ctx) {
		a.toCancelled(ctx, jobs.StatusAnalyzing)
		return
	}

	meta, err := a.probe(ctx)
	if err != nil {
		if a.isCancelErr(ctx, err) {
			a.toCancelled(ctx, jobs.StatusAnalyzing)
			return
		}
		a.fail(ctx, jobs.StatusAnalyzing, fmt.Sprintf("probe: %s", describeErr(err)))
		return
	}

	if a.cancelled(ctx) {
		a.toCancelled(ctx, jobs.StatusAnalyzing)
		return
	}

	action, reason := analyzer.Decide(*meta, a.settings.Transcode)
	a.decide(ctx, action, reason)

	if action == jobs.DecisionSkip {
		if err := a.transition(ctx, jobs.StatusAnalyzing, jobs.StatusSkipped, reason); err != nil {
			a.log().Error("orchestrator: analyzing->skipped failed", "error", err)
		}
		return
	}

	if err := a.transition(ctx, jobs.StatusAnalyzing, jobs.StatusEncoding, reason); err != nil {
		a.log().Error("orchestrator: analyzing->encoding failed", "error", err)
		return
	}

	if a.cancelled(ctx) {
		a.toCancelled(ctx, jobs.StatusEncoding)
		return
	}

	result, err := a.encode(ctx, meta)
	if err != nil {
		if a.isCancelErr(ctx, err) {
			a.toCancelled(ctx, jobs.StatusEncoding)
			return
		}
		a.fail(ctx, jobs.StatusEncoding, fmt.Sprintf("encode: %s", describeErr(err)))
		return
	}

	if a.cancelled(ctx) {
		a.toCancelled(ctx, jobs.StatusEncoding)
		return
	}

	if err := a.transition(ctx, jobs.StatusEncoding, jobs.StatusVerifying, ""); err != nil {
		a.log().Error("orchestrator: encoding->verifying failed", "error", err)
		a.cleanupPartial()
		return
	}

	a.verifyAndCommit(ctx, result, meta)
}

// cancelled checks whether the attempt's context has been cancelled at
// one of its suspension points. It does not transition the job; callers
// decide what cleanup a cancellation at their point requires.
func (a *attempt) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (a *attempt) isCancelErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func (a *attempt) toCancelled(ctx context.Context, from jobs.Status) {
	a.cleanupPartial()
	// The attempt's own ctx is already cancelled, so use a detached
	// context for this last bookkeeping write.
	bg := context.Background()
	if err := a.o.Store.Transition(bg, a.job.ID, from, jobs.StatusCancelled, "cancelled by request"); err != nil {
		a.log().Error("orchestrator: ->cancelled failed", "error", err)
		return
	}
	a.o.Bus.Publish(events.Event{Kind: events.KindStatus, JobID: a.job.ID, Timestamp: time.Now(),
		Payload: map[string]string{"status": string(jobs.StatusCancelled)}})
}

func (a *attempt) fail(ctx context.Context, from jobs.Status, reason string) {
	a.cleanupPartial()
	a.decide(context.Background(), jobs.DecisionFail, reason)
	if err := a.o.Store.Transition(context.Background(), a.job.ID, from, jobs.StatusFailed, reason); err != nil {
		a.log().Error("orchestrator: ->failed failed", "error", err)
	}
	if a.o.Notifier != nil {
		a.o.Notifier.Notify(context.Background(), jobs.EventFailed, a.job, reason, nil)
	}
	if a.o.Metrics != nil {
		a.o.Metrics.RecordFailed()
	}
}

func (a *attempt) cleanupPartial() {
	if a.tempPath == "" {
		return
	}
	if err := encoder.Revert(a.tempPath); err != nil {
		a.log().Warn("orchestrator: cleanup partial failed", "path", a.tempPath, "error", err)
	}
}

// probe runs the media probe under its own wall-clock timeout, independent
// of the job's overall context lifetime.
func (a *attempt) probe(ctx context.Context) (*analyzer.Metadata, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return a.o.Prober.Probe(probeCtx, a.job.InputPath)
}

func describeErr(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && len(msg)-idx < 400 {
		return msg[idx+2:]
	}
	return msg
}

func floatPtr(f float64) *float64 { return &f }

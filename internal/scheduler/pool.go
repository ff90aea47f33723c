package scheduler

import (
	"context"
	"time"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/logger"
	"github.com/alchemist-io/alchemist/internal/metrics"
	"github.com/alchemist-io/alchemist/internal/monitor"
	"github.com/alchemist-io/alchemist/internal/store"
	"golang.org/x/sync/errgroup"
)

// defaultTickInterval is the claim-loop period. The state machine requires
// claims to happen "periodically (≤ 1 s)"; 1s keeps claim latency bounded
// without hammering the store.
const defaultTickInterval = 1 * time.Second

// Runner drives a single claimed job through the Probe → Decide → Encode →
// Verify → Commit/Revert pipeline. Implemented by internal/orchestrator;
// the Pool owns only the claim loop and the job's cancellation handle, not
// its pipeline logic.
type Runner interface {
	Run(ctx context.Context, job *jobs.Job)
}

// SettingsSource returns the live engine settings snapshot the claim loop
// consults each tick for concurrent_jobs. A fresh read every tick means a
// live edit to concurrent_jobs takes effect on the next claim cycle without
// requiring a Pool restart.
type SettingsSource func() config.EngineSettings

// Pool runs the claim loop: it periodically computes eligible slots,
// claims queued jobs from the Store respecting active-hours and pause,
// and spawns a Runner attempt per claimed job, tracking each in State for
// cancellation and claim-time fingerprint exclusion.
type Pool struct {
	store     store.Store
	runner    Runner
	state     *EngineState
	evaluator *ActiveHoursEvaluator
	settings  SettingsSource

	// Monitor is optional; when set and system.max_load_average is
	// nonzero, a tick skips claiming while host load exceeds it.
	Monitor monitor.ResourceMonitor

	// Metrics is optional; when set, active_jobs tracks ActiveCount after
	// every spawn/untrack.
	Metrics *metrics.Metrics

	TickInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewPool constructs a Pool. settings is consulted every tick for the
// current concurrent_jobs bound.
func NewPool(st store.Store, runner Runner, state *EngineState, evaluator *ActiveHoursEvaluator, settings SettingsSource) *Pool {
	return &Pool{
		store:        st,
		runner:       runner,
		state:        state,
		evaluator:    evaluator,
		settings:     settings,
		TickInterval: defaultTickInterval,
	}
}

// Start begins the claim loop, running until Stop is called or parentCtx
// is cancelled.
func (p *Pool) Start(parentCtx context.Context) {
	p.ctx, p.cancel = context.WithCancel(parentCtx)
	p.group = new(errgroup.Group)
	p.group.Go(func() error {
		p.run()
		return nil
	})
}

// Stop cancels the claim loop and every in-flight Runner attempt, then
// waits for them to return.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.group != nil {
		p.group.Wait()
	}
}

// CancelJob requests cancellation of a job currently owned by a Runner
// attempt. Returns false if the job isn't in flight (e.g. still queued).
func (p *Pool) CancelJob(jobID string) bool {
	return p.state.Cancel(jobID)
}

// Pause stops the claim loop from claiming new work; jobs already in
// flight run to completion. Exposed as the engine's pause operation.
func (p *Pool) Pause() {
	p.state.Pause()
}

// Resume allows the claim loop to claim work again.
func (p *Pool) Resume() {
	p.state.Resume()
}

// Status returns the current pause/active snapshot.
func (p *Pool) Status() Status {
	return p.state.Snapshot()
}

func (p *Pool) reportActiveJobs() {
	if p.Metrics != nil {
		p.Metrics.SetActiveJobs(p.state.ActiveCount())
	}
}

func (p *Pool) run() {
	ticker := time.NewTicker(p.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick performs one claim-loop iteration:
//  1. eligible_slots = concurrent_jobs - active
//  2. skip if paused or outside every enabled ScheduleWindow
//  3. claim_next_eligible(eligible_slots, now, excluded=in_flight_fingerprints)
//  4. spawn a Runner task per claimed job
func (p *Pool) tick() {
	if p.state.IsPaused() {
		return
	}

	windows, err := p.store.ListScheduleWindows(p.ctx)
	if err != nil {
		logger.Warn("scheduler: list schedule windows failed", "error", err)
		return
	}
	if !p.evaluator.Allowed(windows, time.Now()) {
		return
	}

	settings := p.settings()
	eligible := settings.Transcode.ConcurrentJobs - p.state.ActiveCount()
	if eligible <= 0 {
		return
	}

	if p.Monitor != nil && settings.System.MaxLoadAverage > 0 {
		sample, err := p.Monitor.Sample(p.ctx)
		if err != nil {
			logger.Warn("scheduler: resource sample failed", "error", err)
		} else if sample.LoadAverage1 > settings.System.MaxLoadAverage {
			logger.Debug("scheduler: skipping tick, host load above max_load_average",
				"load1", sample.LoadAverage1, "max", settings.System.MaxLoadAverage)
			return
		}
	}

	claimed, err := p.store.ClaimNextEligible(p.ctx, eligible, time.Now(), p.state.InFlightFingerprints())
	if err != nil {
		logger.Warn("scheduler: claim failed", "error", err)
		return
	}

	for _, job := range claimed {
		p.spawn(job)
	}
}

// spawn starts a Runner attempt for a freshly claimed job, tracking it in
// State so CancelJob and the next tick's fingerprint exclusion see it.
func (p *Pool) spawn(job *jobs.Job) {
	jobCtx, cancel := context.WithCancel(p.ctx)
	p.state.track(job.ID, job.MTimeHash, cancel)
	p.reportActiveJobs()

	p.group.Go(func() error {
		defer cancel()
		defer p.reportActiveJobs()
		defer p.state.untrack(job.ID)
		p.runner.Run(jobCtx, job)
		return nil
	})
}

package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/encoder"
	"github.com/alchemist-io/alchemist/internal/encoder/vmaf"
	"github.com/alchemist-io/alchemist/internal/events"
	"github.com/alchemist-io/alchemist/internal/jobs"
)

func testOrchestrator(store *fakeStore, settings config.EngineSettings) *Orchestrator {
	return &Orchestrator{
		Store:      store,
		Registry:   encoder.NewRegistry(),
		Detector:   vmaf.NewDetector("ffmpeg"),
		Bus:        events.NewBus(),
		Settings:   func() config.EngineSettings { return settings },
		FFmpegPath: "ffmpeg",
		TempDirFor: func(string) string { return "/tmp" },
	}
}

// Cancellation lands before the probe is ever attempted, so this exercises
// the earliest cancellation checkpoint in the attempt without needing a
// real ffprobe binary to drive a full analyzing transition.
func TestRunCancelledBeforeProbeTransitionsToCancelled(t *testing.T) {
	fs := &fakeStore{}
	o := testOrchestrator(fs, config.DefaultConfig().Engine)
	job := &jobs.Job{ID: "job-1", InputPath: "/media/movie.mkv", Status: jobs.StatusClaimed}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o.Run(ctx, job)

	last, ok := fs.lastTransition()
	if !ok {
		t.Fatal("expected a transition to be recorded")
	}
	if last.to != jobs.StatusCancelled {
		t.Errorf("last transition = %+v, want to=cancelled", last)
	}
	if last.from != jobs.StatusAnalyzing {
		t.Errorf("last transition = %+v, want from=analyzing", last)
	}
}

// When the very first transition fails, run() must not fabricate any
// further state change: the job is left exactly where the store has it for
// the next claim attempt.
func TestRunAbortsWithoutFurtherWritesWhenFirstTransitionFails(t *testing.T) {
	fs := &fakeStore{transitionErr: errors.New("db closed")}
	o := testOrchestrator(fs, config.DefaultConfig().Engine)
	job := &jobs.Job{ID: "job-2", InputPath: "/media/movie.mkv", Status: jobs.StatusClaimed}

	o.Run(context.Background(), job)

	if _, ok := fs.lastTransition(); ok {
		t.Error("expected no transition to be recorded when the store itself rejects the write")
	}
	if _, ok := fs.lastDecision(); ok {
		t.Error("expected no decision to be recorded when the store itself rejects the write")
	}
}

func TestDescribeErrReturnsTheInnermostWrappedMessage(t *testing.T) {
	err := errors.New("probe failed: exit status 1: no such file")
	got := describeErr(err)
	want := "no such file"
	if got != want {
		t.Errorf("describeErr(%q) = %q, want %q", err, got, want)
	}
}

func TestDescribeErrReturnsWholeMessageWhenUnwrapped(t *testing.T) {
	err := errors.New("disk full")
	if got := describeErr(err); got != "disk full" {
		t.Errorf("describeErr(%q) = %q, want the message unchanged", err, got)
	}
}

func TestFloatPtrReturnsAddressableCopy(t *testing.T) {
	p := floatPtr(96.5)
	if p == nil || *p != 96.5 {
		t.Errorf("floatPtr(96.5) = %v, want pointer to 96.5", p)
	}
}

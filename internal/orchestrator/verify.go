package orchestrator

import (
	"context"
	"fmt"

	"github.com/alchemist-io/alchemist/internal/analyzer"
	"github.com/alchemist-io/alchemist/internal/encoder"
	"github.com/alchemist-io/alchemist/internal/encoder/vmaf"
	"github.com/alchemist-io/alchemist/internal/jobs"
)

// verifyAndCommit runs the optional post-encode VMAF check, the
// size/quality gate, and either a commit (with EncodeStats and the
// source-deletion policy) or a revert.
func (a *attempt) verifyAndCommit(ctx context.Context, result *encoder.Result, meta *analyzer.Metadata) {
	if a.cancelled(ctx) {
		a.toCancelled(ctx, jobs.StatusVerifying)
		return
	}

	score := a.achievedVMafScore
	if score == nil {
		score = a.postEncodeVMafScore(ctx, result, meta)
	}

	reduction := 1 - float64(result.OutputSize)/float64(result.InputSize)
	sizeGateFailed := reduction < a.settings.Transcode.SizeReductionThreshold
	vmafGateFailed := a.settings.Transcode.VMafFloor > 0 && score != nil && *score < a.settings.Transcode.VMafFloor

	if sizeGateFailed || vmafGateFailed {
		reason := revertReason(reduction, a.settings.Transcode.SizeReductionThreshold, score, a.settings.Transcode.VMafFloor)
		if err := encoder.Revert(a.tempPath); err != nil {
			a.log().Warn("orchestrator: revert cleanup failed", "error", err)
		}
		a.decide(ctx, jobs.DecisionRevert, reason)
		if err := a.transition(ctx, jobs.StatusVerifying, jobs.StatusReverted, reason); err != nil {
			a.log().Error("orchestrator: verifying->reverted failed", "error", err)
		}
		return
	}

	deleteSource := a.settings.Files.DeleteSource
	if err := encoder.Commit(a.job.InputPath, a.tempPath, a.outputPath, deleteSource); err != nil {
		a.fail(ctx, jobs.StatusVerifying, fmt.Sprintf("commit: %s", describeErr(err)))
		return
	}

	stats := &jobs.EncodeStats{
		JobID:             a.job.ID,
		InputSizeBytes:    result.InputSize,
		OutputSizeBytes:   result.OutputSize,
		CompressionRatio:  float64(result.InputSize) / float64(result.OutputSize),
		EncodeTimeSeconds: result.Elapsed.Seconds(),
		EncodeSpeed:       encodeSpeed(result, meta),
		AvgBitrateKbps:    avgBitrateKbps(result, meta),
		VMafScore:         score,
	}
	if err := a.o.Store.RecordEncodeStats(ctx, stats); err != nil {
		a.log().Error("orchestrator: record encode stats failed", "error", err)
	}

	if err := a.transition(ctx, jobs.StatusVerifying, jobs.StatusCompleted, ""); err != nil {
		a.log().Error("orchestrator: verifying->completed failed", "error", err)
	}
	if a.o.Notifier != nil {
		a.o.Notifier.Notify(ctx, jobs.EventCompleted, a.job, "", stats)
	}
	if a.o.Metrics != nil {
		a.o.Metrics.RecordCompleted(result.InputSize - result.OutputSize)
	}
}

func revertReason(reduction, threshold float64, score *float64, floor float64) string {
	if reduction < threshold {
		return fmt.Sprintf("insufficient size reduction: %.0f%%<%.0f%%", reduction*100, threshold*100)
	}
	return fmt.Sprintf("vmaf score %.1f below configured floor %.1f", *score, floor)
}

// postEncodeVMafScore runs an optional post-hoc check: a
// reference/distorted comparison between the source and the encoded temp
// output (scored before it is committed), skipped silently if libvmaf isn't available in this ffmpeg
// build. A failed or unavailable computation is never a gate failure:
// floor evaluation only applies when a score exists.
func (a *attempt) postEncodeVMafScore(ctx context.Context, result *encoder.Result, meta *analyzer.Metadata) *float64 {
	if a.settings.Transcode.VMafFloor <= 0 || !a.o.Detector.Available() {
		return nil
	}

	var tonemap *vmaf.TonemapConfig
	if meta.IsHDR {
		hdr := a.hdrPolicy()
		tonemap = &vmaf.TonemapConfig{Enabled: hdr.Tonemap, Algorithm: hdr.Algorithm}
	}

	model := a.o.Detector.SelectModel(meta.Height)
	score, err := vmaf.Score(ctx, a.o.FFmpegPath, a.job.InputPath, a.tempPath, meta.Height, model, tonemap)
	if err != nil {
		a.log().Warn("orchestrator: post-encode vmaf scoring failed, gate ignores vmaf", "error", err)
		return nil
	}
	return floatPtr(score)
}

// encodeSpeed is the job's real encode throughput in frames/sec: the
// source's total frame count (duration x frame rate) divided by wall-clock
// elapsed time, distinct from ffmpeg's own "speed=Nx" realtime multiplier.
func encodeSpeed(result *encoder.Result, meta *analyzer.Metadata) float64 {
	if result.Elapsed.Seconds() <= 0 || meta.FrameRate <= 0 {
		return 0
	}
	totalFrames := meta.Duration.Seconds() * meta.FrameRate
	return totalFrames / result.Elapsed.Seconds()
}

// avgBitrateKbps derives the output's average bitrate from its size and the
// source's duration: re-encoding preserves runtime, so the source duration
// stands in for the (unprobed) output duration.
func avgBitrateKbps(result *encoder.Result, meta *analyzer.Metadata) float64 {
	if meta.Duration.Seconds() <= 0 {
		return 0
	}
	return float64(result.OutputSize) * 8 / 1000 / meta.Duration.Seconds()
}

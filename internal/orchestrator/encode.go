package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alchemist-io/alchemist/internal/analyzer"
	"github.com/alchemist-io/alchemist/internal/encoder"
	"github.com/alchemist-io/alchemist/internal/encoder/vmaf"
	"github.com/alchemist-io/alchemist/internal/events"
)

// errNoEncoderAvailable means no permitted hardware or software path
// exists for this job.
var errNoEncoderAvailable = errors.New("no encoder path available")

// encode runs the path-selection-with-fallback loop: pick the
// highest-priority available encoder, attempt it, and on a (non-cancel)
// failure walk the fallback chain while transcode.allow_fallback permits
// it. Reaching the software path, whether as the only option or as a
// fallback, additionally requires both hardware.allow_cpu_fallback and
// hardware.allow_cpu_encoding.
func (a *attempt) encode(ctx context.Context, meta *analyzer.Metadata) (*encoder.Result, error) {
	codec := encoder.Codec(a.settings.Transcode.OutputCodec)

	subtitleMap, err := a.resolveSubtitleMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe subtitles: %w", err)
	}

	hdr := a.hdrPolicy()
	quality, qualityOverride, vmafScore := a.resolveQuality(ctx, meta, codec, hdr)
	a.achievedVMafScore = vmafScore

	candidate := a.o.Registry.BestEncoder(codec)
	tried := make(map[encoder.Accel]bool)

	for {
		if candidate == nil || tried[candidate.Accel] {
			return nil, fmt.Errorf("%w: exhausted fallback chain", errNoEncoderAvailable)
		}
		tried[candidate.Accel] = true

		if candidate.Accel == encoder.AccelNone && !(a.settings.Hardware.AllowCPUFallback && a.settings.Hardware.AllowCPUEncoding) {
			return nil, fmt.Errorf("%w: software encoding not permitted", errNoEncoderAvailable)
		}

		if candidate.Accel != encoder.AccelNone && encoder.RequiresSoftwareDecode(meta.VideoCodec, "", meta.BitDepth, candidate.Accel) {
			a.log().Info("orchestrator: skipping path, source requires software decode", "accel", candidate.Accel)
			candidate = a.nextCandidate(candidate, codec)
			continue
		}

		result, attemptErr := a.attemptOnce(ctx, meta, candidate, hdr, subtitleMap, quality, qualityOverride)
		if attemptErr == nil {
			return result, nil
		}
		if a.isCancelErr(ctx, attemptErr) {
			return nil, attemptErr
		}
		a.log().Warn("orchestrator: encoder path failed", "accel", candidate.Accel, "error", attemptErr)
		if !a.settings.Transcode.AllowFallback {
			return nil, attemptErr
		}
		candidate = a.nextCandidate(candidate, codec)
	}
}

func (a *attempt) nextCandidate(current *encoder.Encoder, codec encoder.Codec) *encoder.Encoder {
	return a.o.Registry.FallbackEncoder(current.Accel, codec)
}

// resolveSubtitleMap probes subtitle streams only when the configured
// output container is MKV, the only container this build knows a
// compatibility table for; other containers map every subtitle stream
// unchanged.
func (a *attempt) resolveSubtitleMap(ctx context.Context) ([]int, error) {
	if a.settings.Files.OutputExtension != "mkv" {
		return nil, nil
	}
	streams, err := a.o.Prober.ProbeSubtitles(ctx, a.job.InputPath)
	if err != nil {
		return nil, err
	}
	keep, dropped := encoder.FilterMKVCompatible(streams)
	if len(dropped) > 0 {
		a.log().Warn("orchestrator: dropping MKV-incompatible subtitle codecs", "codecs", dropped)
	}
	return keep, nil
}

func (a *attempt) hdrPolicy() encoder.HDRPolicy {
	return encoder.HDRPolicy{
		Tonemap:   a.settings.Transcode.HDRMode == "tonemap",
		Algorithm: a.settings.Transcode.TonemapAlgorithm,
		Peak:      a.settings.Transcode.TonemapPeak,
		Desat:     a.settings.Transcode.TonemapDesat,
	}
}

// qualityOverride carries a VMAF-search-derived quality setting past
// BuildArgs's named-profile lookup.
type qualityOverride struct {
	set      bool
	value    string
	modifier float64
}

// resolveQuality returns the QualityProfile name to pass to BuildArgs, an
// optional override replacing the table lookup (used by the "smartshrink"
// profile), and the VMAF score the override was validated against, if any.
func (a *attempt) resolveQuality(ctx context.Context, meta *analyzer.Metadata, codec encoder.Codec, hdr encoder.HDRPolicy) (profile string, override qualityOverride, score *float64) {
	profile = a.settings.Transcode.QualityProfile
	if profile != "smartshrink" {
		return profile, qualityOverride{}, nil
	}

	best := a.o.Registry.BestEncoder(codec)
	result, err := a.runSmartShrink(ctx, meta, best, hdr)
	if err != nil || result == nil || result.ShouldSkip {
		if err != nil {
			a.log().Warn("orchestrator: smartshrink analysis failed, falling back to quality profile", "error", err)
		} else if result != nil {
			a.log().Info("orchestrator: smartshrink found no setting meeting the VMAF floor, falling back to quality profile", "reason", result.SkipReason)
		}
		return "quality", qualityOverride{}, nil
	}

	a.publish(events.KindDecision, map[string]interface{}{"action": "smartshrink", "score": result.Score, "samples": result.SamplesUsed})

	if result.Modifier > 0 {
		return "balanced", qualityOverride{set: true, modifier: result.Modifier}, floatPtr(result.Score)
	}
	return "balanced", qualityOverride{set: true, value: result.Quality}, floatPtr(result.Score)
}

// runSmartShrink binary-searches the encoder's quality knob against sample
// clips to find the loosest setting still meeting the configured VMAF
// floor, per the supplemented VMAF-gated quality search.
func (a *attempt) runSmartShrink(ctx context.Context, meta *analyzer.Metadata, path *encoder.Encoder, hdr encoder.HDRPolicy) (*vmaf.AnalysisResult, error) {
	if a.settings.Transcode.VMafFloor <= 0 {
		return nil, fmt.Errorf("no vmaf floor configured")
	}
	if !a.o.Detector.Available() {
		return nil, fmt.Errorf("vmaf not available in this ffmpeg build")
	}

	qRange := encoder.QualityRangeFor(encoder.EncoderKey{Accel: path.Accel, Codec: path.Codec})
	analyzerInst := vmaf.NewAnalyzer(a.o.FFmpegPath, a.o.TempDirFor(a.job.InputPath), a.o.Detector, true, a.settings.Transcode.VMafFloor)

	var tonemap *vmaf.TonemapConfig
	if meta.IsHDR {
		tonemap = &vmaf.TonemapConfig{Enabled: hdr.Tonemap, Algorithm: hdr.Algorithm}
	}

	key := encoder.EncoderKey{Accel: path.Accel, Codec: path.Codec}
	encodeSample := func(sampleCtx context.Context, samplePath string, quality int, modifier float64) (string, error) {
		return a.encodeVMafSample(sampleCtx, samplePath, key, meta, hdr, quality, modifier)
	}

	return analyzerInst.Analyze(ctx, a.job.InputPath, meta.Duration, meta.Height, qRange, tonemap, encodeSample)
}

// encodeVMafSample produces one trial-quality encode of a reference clip
// for scoring.
func (a *attempt) encodeVMafSample(ctx context.Context, samplePath string, key encoder.EncoderKey, meta *analyzer.Metadata, hdr encoder.HDRPolicy, quality int, modifier float64) (string, error) {
	flag, usesBitrate := encoder.QualityFlagFor(key)

	var valueStr string
	if usesBitrate {
		valueStr = encoder.BitrateKbpsFor(meta.VideoBitrate, modifier)
	} else {
		valueStr = fmt.Sprint(quality)
	}

	var filter string
	if meta.IsHDR && hdr.Tonemap {
		filter = encoder.TonemapFilter(hdr)
	}

	args := []string{"-an", "-sn"}
	if filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args, "-c:v", encoderFFmpegName(key), flag, valueStr)

	outPath := samplePath + ".out.mkv"
	progress := make(chan encoder.Progress, 1)
	go func() {
		for range progress {
		}
	}()
	if _, err := a.o.Transcoder.Transcode(ctx, samplePath, outPath, args, 0, progress); err != nil {
		return "", err
	}
	return outPath, nil
}

// encoderFFmpegName looks up the ffmpeg encoder name for an accel+codec
// pair without depending on Registry detection state, since VMAF sample
// encodes always target the same path the real encode will use.
func encoderFFmpegName(key encoder.EncoderKey) string {
	args := encoder.BuildArgs(encoder.BuildArgsInput{Accel: key.Accel, Codec: key.Codec, QualityProfile: "balanced"})
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-c:v" {
			return args[i+1]
		}
	}
	return "libx265"
}

// attemptOnce builds the ffmpeg argument list for one encode attempt on
// candidate and runs it to completion, coalescing progress updates to the
// store and event bus.
func (a *attempt) attemptOnce(ctx context.Context, meta *analyzer.Metadata, candidate *encoder.Encoder, hdr encoder.HDRPolicy, subtitleMap []int, profile string, override qualityOverride) (*encoder.Result, error) {
	a.outputPath = encoder.BuildOutputPath(a.job.InputPath, a.settings.Files.OutputSuffix, a.settings.Files.OutputExtension)
	a.tempPath = encoder.BuildTempPath(a.outputPath)

	buildInput := encoder.BuildArgsInput{
		Accel:          candidate.Accel,
		Codec:          candidate.Codec,
		QualityProfile: profile,
		SourceBitrate:  meta.VideoBitrate,
		Threads:        a.settings.Transcode.Threads,
		IsHDR:          meta.IsHDR,
		HDR:            hdr,
		VAAPIDevice:    a.o.Registry.VAAPIDevice(),
		SubtitleMap:    subtitleMap,
	}
	args := encoder.BuildArgs(buildInput)
	if override.set {
		args = applyQualityOverride(args, candidate.Accel, candidate.Codec, meta.VideoBitrate, override)
	}

	progressCh := make(chan encoder.Progress, 4)
	done := make(chan struct{})
	go a.forwardProgress(progressCh, done)

	result, err := a.o.Transcoder.Transcode(ctx, a.job.InputPath, a.tempPath, args, meta.Duration, progressCh)
	<-done
	return result, err
}

// applyQualityOverride replaces BuildArgs's table-driven quality flag/value
// pair with a VMAF-search-derived one, leaving every other argument (filter
// chain, stream mapping, hwaccel setup) untouched.
func applyQualityOverride(args []string, accel encoder.Accel, codec encoder.Codec, sourceBitrate int64, override qualityOverride) []string {
	flag, usesBitrate := encoder.QualityFlagFor(encoder.EncoderKey{Accel: accel, Codec: codec})
	value := override.value
	if usesBitrate {
		value = encoder.BitrateKbpsFor(sourceBitrate, override.modifier)
	}
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == flag {
			out[i+1] = value
			break
		}
	}
	return out
}

// forwardProgress coalesces encoder.Progress samples onto the store and
// event bus, throttled to progressThrottle's cadence.
func (a *attempt) forwardProgress(progressCh <-chan encoder.Progress, done chan<- struct{}) {
	defer close(done)
	var last time.Time
	for p := range progressCh {
		if time.Since(last) < progressThrottle {
			continue
		}
		last = time.Now()
		if err := a.o.Store.MarkProgress(context.Background(), a.job.ID, p.Percent); err != nil {
			a.log().Warn("orchestrator: mark progress failed", "error", err)
		}
		a.publish(events.KindProgress, map[string]interface{}{
			"percent": p.Percent, "fps": p.FPS, "speed": p.Speed, "eta_seconds": p.ETA.Seconds(),
		})
	}
}

package encoder

import (
	"strings"
	"testing"
)

func TestQualityRangeForCRFEncoderUsesQualityAndSpeedTiersAsBounds(t *testing.T) {
	r := QualityRangeFor(EncoderKey{AccelNone, CodecHEVC})
	if r.UsesBitrate {
		t.Fatalf("QualityRangeFor(software HEVC) = %+v, want a CRF range", r)
	}
	if r.Min != 22 || r.Max != 29 {
		t.Errorf("QualityRangeFor(software HEVC) = {Min:%d Max:%d}, want {22 29}", r.Min, r.Max)
	}
}

func TestQualityRangeForBitrateEncoderUsesQualityAndSpeedTiersAsBounds(t *testing.T) {
	r := QualityRangeFor(EncoderKey{AccelVideoToolbox, CodecHEVC})
	if !r.UsesBitrate {
		t.Fatalf("QualityRangeFor(VideoToolbox HEVC) = %+v, want a bitrate-modifier range", r)
	}
	if r.MinMod != 0.25 || r.MaxMod != 0.45 {
		t.Errorf("QualityRangeFor(VideoToolbox HEVC) = {MinMod:%v MaxMod:%v}, want {0.25 0.45}", r.MinMod, r.MaxMod)
	}
}

func TestQualityRangeForUnknownKeyFallsBackToSoftware(t *testing.T) {
	r := QualityRangeFor(EncoderKey{Accel("bogus"), CodecHEVC})
	if r.Min != 22 || r.Max != 29 {
		t.Errorf("QualityRangeFor(unknown accel) = {Min:%d Max:%d}, want software HEVC bounds {22 29}", r.Min, r.Max)
	}
}

func TestQualityFlagForReturnsFlagAndBitrateModeFromBalancedTier(t *testing.T) {
	flag, usesBitrate := QualityFlagFor(EncoderKey{AccelNone, CodecHEVC})
	if flag != "-crf" || usesBitrate {
		t.Errorf("QualityFlagFor(software HEVC) = (%q, %v), want (-crf, false)", flag, usesBitrate)
	}

	flag, usesBitrate = QualityFlagFor(EncoderKey{AccelVideoToolbox, CodecHEVC})
	if flag != "-b:v" || !usesBitrate {
		t.Errorf("QualityFlagFor(VideoToolbox HEVC) = (%q, %v), want (-b:v, true)", flag, usesBitrate)
	}
}

func TestBitrateKbpsForMatchesBuildArgsComputation(t *testing.T) {
	if got := BitrateKbpsFor(10_000_000, 0.35); got != "3500k" {
		t.Errorf("BitrateKbpsFor(10Mbps, 0.35) = %q, want 3500k", got)
	}
}

func TestBitrateKbpsForClampsToFloorAndCeiling(t *testing.T) {
	if got := BitrateKbpsFor(100_000, 0.35); got != "500k" {
		t.Errorf("BitrateKbpsFor(tiny source, 0.35) = %q, want clamped floor 500k", got)
	}
	if got := BitrateKbpsFor(200_000_000, 0.35); got != "15000k" {
		t.Errorf("BitrateKbpsFor(huge source, 0.35) = %q, want clamped ceiling 15000k", got)
	}
}

func TestTonemapFilterMatchesBuildArgsFilterChain(t *testing.T) {
	policy := HDRPolicy{Tonemap: true, Algorithm: "hable", Peak: 1000, Desat: 0}
	args := BuildArgs(BuildArgsInput{Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "balanced", IsHDR: true, HDR: policy})
	if !containsArg(args, TonemapFilter(policy)) {
		t.Errorf("BuildArgs() = %v, want it to contain TonemapFilter(policy) verbatim", args)
	}
}

func hasArg(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func containsArg(args []string, s string) bool {
	return strings.Contains(strings.Join(args, " "), s)
}

func TestBuildArgsSoftwareHEVCUsesConfiguredCRF(t *testing.T) {
	args := BuildArgs(BuildArgsInput{Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "balanced"})
	if !hasArg(args, "-crf", "26") {
		t.Errorf("BuildArgs() = %v, want -crf 26 for balanced software HEVC", args)
	}
	if !hasArg(args, "-c:v", "libx265") {
		t.Errorf("BuildArgs() = %v, want -c:v libx265", args)
	}
}

func TestBuildArgsFallsBackToBalancedOnUnknownProfile(t *testing.T) {
	args := BuildArgs(BuildArgsInput{Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "ludicrous"})
	if !hasArg(args, "-crf", "26") {
		t.Errorf("BuildArgs() with unknown profile = %v, want fallback to balanced (-crf 26)", args)
	}
}

func TestBuildArgsVideoToolboxComputesBitrateFromSource(t *testing.T) {
	args := BuildArgs(BuildArgsInput{
		Accel: AccelVideoToolbox, Codec: CodecHEVC, QualityProfile: "balanced",
		SourceBitrate: 10_000_000, // 10 Mbps source, 0.35 modifier -> 3500 kbps
	})
	if !hasArg(args, "-b:v", "3500k") {
		t.Errorf("BuildArgs() = %v, want -b:v 3500k", args)
	}
}

func TestBuildArgsVideoToolboxClampsBitrateToFloor(t *testing.T) {
	args := BuildArgs(BuildArgsInput{
		Accel: AccelVideoToolbox, Codec: CodecHEVC, QualityProfile: "quality",
		SourceBitrate: 100_000, // tiny source, modifier would compute below the floor
	})
	if !hasArg(args, "-b:v", "500k") {
		t.Errorf("BuildArgs() = %v, want bitrate clamped to floor 500k", args)
	}
}

func TestBuildArgsVideoToolboxClampsBitrateToCeiling(t *testing.T) {
	args := BuildArgs(BuildArgsInput{
		Accel: AccelVideoToolbox, Codec: CodecHEVC, QualityProfile: "speed",
		SourceBitrate: 200_000_000, // huge source, modifier would compute above the ceiling
	})
	if !hasArg(args, "-b:v", "15000k") {
		t.Errorf("BuildArgs() = %v, want bitrate clamped to ceiling 15000k", args)
	}
}

func TestBuildArgsMapsAllSubtitlesWhenNil(t *testing.T) {
	args := BuildArgs(BuildArgsInput{Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "balanced", SubtitleMap: nil})
	if !hasArg(args, "-map", "0:s?") {
		t.Errorf("BuildArgs() with nil SubtitleMap = %v, want -map 0:s?", args)
	}
}

func TestBuildArgsMapsNoSubtitlesWhenEmpty(t *testing.T) {
	args := BuildArgs(BuildArgsInput{Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "balanced", SubtitleMap: []int{}})
	if containsArg(args, "0:s") {
		t.Errorf("BuildArgs() with empty SubtitleMap = %v, want no subtitle mapping", args)
	}
}

func TestBuildArgsMapsSpecificSubtitleIndices(t *testing.T) {
	args := BuildArgs(BuildArgsInput{Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "balanced", SubtitleMap: []int{2, 4}})
	if !hasArg(args, "-map", "0:2") || !hasArg(args, "-map", "0:4") {
		t.Errorf("BuildArgs() = %v, want -map 0:2 and -map 0:4", args)
	}
}

func TestBuildArgsVAAPIPrependsDeviceAndUploadsFilter(t *testing.T) {
	args := BuildArgs(BuildArgsInput{Accel: AccelVAAPI, Codec: CodecHEVC, QualityProfile: "balanced", VAAPIDevice: "/dev/dri/renderD129"})
	if args[0] != "-vaapi_device" || args[1] != "/dev/dri/renderD129" {
		t.Errorf("BuildArgs() = %v, want -vaapi_device prepended first", args)
	}
	if !containsArg(args, "hwupload") {
		t.Errorf("BuildArgs() = %v, want hwupload filter for VAAPI", args)
	}
}

func TestBuildArgsTonemapsHDRSource(t *testing.T) {
	args := BuildArgs(BuildArgsInput{
		Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "balanced",
		IsHDR: true, HDR: HDRPolicy{Tonemap: true, Algorithm: "hable", Peak: 1000, Desat: 0},
	})
	if !containsArg(args, "tonemap=hable") {
		t.Errorf("BuildArgs() = %v, want tonemap=hable in filter chain", args)
	}
}

func TestBuildArgsPreservesHDRMetadataWithoutTonemap(t *testing.T) {
	args := BuildArgs(BuildArgsInput{
		Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "balanced",
		IsHDR: true, HDR: HDRPolicy{Tonemap: false},
	})
	if containsArg(args, "tonemap") {
		t.Errorf("BuildArgs() = %v, want no tonemap filter when HDR preserve mode is set", args)
	}
}

func TestBuildArgsThreadsOnlyAppliedToSoftwareEncode(t *testing.T) {
	args := BuildArgs(BuildArgsInput{Accel: AccelNone, Codec: CodecHEVC, QualityProfile: "balanced", Threads: 4})
	if !hasArg(args, "-threads", "4") {
		t.Errorf("BuildArgs() = %v, want -threads 4 for software encode", args)
	}

	hwArgs := BuildArgs(BuildArgsInput{Accel: AccelNVENC, Codec: CodecHEVC, QualityProfile: "balanced", Threads: 4})
	if containsArg(hwArgs, "-threads") {
		t.Errorf("BuildArgs() = %v, want no -threads flag for hardware encode", hwArgs)
	}
}

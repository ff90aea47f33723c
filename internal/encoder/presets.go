package encoder

import (
	"fmt"
	"strconv"

	"github.com/alchemist-io/alchemist/internal/encoder/vmaf"
)

// qualitySetting is one accel+codec+profile's concrete ffmpeg quality
// control: which flag to pass (-crf, -cq, -global_quality, -qp, -b:v) and
// the value, plus any fixed extra encoder args.
type qualitySetting struct {
	qualityFlag string
	quality     string // CRF/CQ/QP value, or a bitrate modifier when usesBitrate
	extraArgs   []string
	usesBitrate bool // quality is a 0.0-1.0 fraction of source bitrate
}

const (
	minBitrateKbps = 500
	maxBitrateKbps = 15000
)

// qualityTable holds, per accel+codec, the setting for each of the three
// operator-facing quality profiles. Values are grounded on the teacher's
// single-profile CRF/CQ/QP constants, spread across speed/balanced/quality
// by the same encoder-specific step sizes the teacher used between its
// compress and downscale presets.
var qualityTable = map[EncoderKey]map[string]qualitySetting{
	{AccelNone, CodecHEVC}: {
		"speed":    {qualityFlag: "-crf", quality: "29", extraArgs: []string{"-preset", "fast"}},
		"balanced": {qualityFlag: "-crf", quality: "26", extraArgs: []string{"-preset", "medium"}},
		"quality":  {qualityFlag: "-crf", quality: "22", extraArgs: []string{"-preset", "slow"}},
	},
	{AccelVideoToolbox, CodecHEVC}: {
		"speed":    {qualityFlag: "-b:v", quality: "0.25", extraArgs: []string{"-allow_sw", "1"}, usesBitrate: true},
		"balanced": {qualityFlag: "-b:v", quality: "0.35", extraArgs: []string{"-allow_sw", "1"}, usesBitrate: true},
		"quality":  {qualityFlag: "-b:v", quality: "0.45", extraArgs: []string{"-allow_sw", "1"}, usesBitrate: true},
	},
	{AccelNVENC, CodecHEVC}: {
		"speed":    {qualityFlag: "-cq", quality: "31", extraArgs: []string{"-preset", "p3", "-tune", "hq", "-rc", "vbr"}},
		"balanced": {qualityFlag: "-cq", quality: "28", extraArgs: []string{"-preset", "p4", "-tune", "hq", "-rc", "vbr"}},
		"quality":  {qualityFlag: "-cq", quality: "24", extraArgs: []string{"-preset", "p6", "-tune", "hq", "-rc", "vbr"}},
	},
	{AccelQSV, CodecHEVC}: {
		"speed":    {qualityFlag: "-global_quality", quality: "30", extraArgs: []string{"-preset", "fast"}},
		"balanced": {qualityFlag: "-global_quality", quality: "27", extraArgs: []string{"-preset", "medium"}},
		"quality":  {qualityFlag: "-global_quality", quality: "23", extraArgs: []string{"-preset", "slow"}},
	},
	{AccelVAAPI, CodecHEVC}: {
		"speed":    {qualityFlag: "-qp", quality: "30"},
		"balanced": {qualityFlag: "-qp", quality: "27"},
		"quality":  {qualityFlag: "-qp", quality: "23"},
	},

	// SVT-AV1 CRF tracks roughly 12 points above libx265 CRF for comparable
	// quality, matching the teacher's compress-av1 preset's offset.
	{AccelNone, CodecAV1}: {
		"speed":    {qualityFlag: "-crf", quality: "41", extraArgs: []string{"-preset", "8"}},
		"balanced": {qualityFlag: "-crf", quality: "38", extraArgs: []string{"-preset", "6"}},
		"quality":  {qualityFlag: "-crf", quality: "34", extraArgs: []string{"-preset", "4"}},
	},
	{AccelVideoToolbox, CodecAV1}: {
		"speed":    {qualityFlag: "-b:v", quality: "0.18", extraArgs: []string{"-allow_sw", "1"}, usesBitrate: true},
		"balanced": {qualityFlag: "-b:v", quality: "0.25", extraArgs: []string{"-allow_sw", "1"}, usesBitrate: true},
		"quality":  {qualityFlag: "-b:v", quality: "0.35", extraArgs: []string{"-allow_sw", "1"}, usesBitrate: true},
	},
	{AccelNVENC, CodecAV1}: {
		"speed":    {qualityFlag: "-cq", quality: "39", extraArgs: []string{"-preset", "p3", "-tune", "hq", "-rc", "vbr"}},
		"balanced": {qualityFlag: "-cq", quality: "36", extraArgs: []string{"-preset", "p4", "-tune", "hq", "-rc", "vbr"}},
		"quality":  {qualityFlag: "-cq", quality: "32", extraArgs: []string{"-preset", "p6", "-tune", "hq", "-rc", "vbr"}},
	},
	{AccelQSV, CodecAV1}: {
		"speed":    {qualityFlag: "-global_quality", quality: "37", extraArgs: []string{"-preset", "fast"}},
		"balanced": {qualityFlag: "-global_quality", quality: "34", extraArgs: []string{"-preset", "medium"}},
		"quality":  {qualityFlag: "-global_quality", quality: "30", extraArgs: []string{"-preset", "slow"}},
	},
	{AccelVAAPI, CodecAV1}: {
		"speed":    {qualityFlag: "-qp", quality: "37"},
		"balanced": {qualityFlag: "-qp", quality: "34"},
		"quality":  {qualityFlag: "-qp", quality: "30"},
	},

	{AccelNone, CodecH264}: {
		"speed":    {qualityFlag: "-crf", quality: "25", extraArgs: []string{"-preset", "fast"}},
		"balanced": {qualityFlag: "-crf", quality: "22", extraArgs: []string{"-preset", "medium"}},
		"quality":  {qualityFlag: "-crf", quality: "19", extraArgs: []string{"-preset", "slow"}},
	},
	{AccelNVENC, CodecH264}: {
		"speed":    {qualityFlag: "-cq", quality: "27", extraArgs: []string{"-preset", "p3", "-tune", "hq", "-rc", "vbr"}},
		"balanced": {qualityFlag: "-cq", quality: "24", extraArgs: []string{"-preset", "p4", "-tune", "hq", "-rc", "vbr"}},
		"quality":  {qualityFlag: "-cq", quality: "20", extraArgs: []string{"-preset", "p6", "-tune", "hq", "-rc", "vbr"}},
	},
	{AccelQSV, CodecH264}: {
		"speed":    {qualityFlag: "-global_quality", quality: "26", extraArgs: []string{"-preset", "fast"}},
		"balanced": {qualityFlag: "-global_quality", quality: "23", extraArgs: []string{"-preset", "medium"}},
		"quality":  {qualityFlag: "-global_quality", quality: "19", extraArgs: []string{"-preset", "slow"}},
	},
	{AccelVAAPI, CodecH264}: {
		"speed":    {qualityFlag: "-qp", quality: "26"},
		"balanced": {qualityFlag: "-qp", quality: "23"},
		"quality":  {qualityFlag: "-qp", quality: "19"},
	},
}

// QualityRangeFor derives the VMAF binary search bounds for an encoder
// from the same qualityTable entries BuildArgs uses, rather than keeping a
// second set of hand-tuned numbers: the "quality" tier is already this
// encoder's best-quality/most-bitrate setting and "speed" its
// worst-quality/least-bitrate one, so they double as the search's better
// and worse bounds. Falls back to the software encoder's range for an
// accel+codec pair with no table entry.
func QualityRangeFor(key EncoderKey) vmaf.QualityRange {
	tiers, ok := qualityTable[key]
	if !ok {
		tiers = qualityTable[EncoderKey{AccelNone, key.Codec}]
	}
	quality := tiers["quality"]
	speed := tiers["speed"]

	if quality.usesBitrate {
		var minMod, maxMod float64
		fmt.Sscanf(speed.quality, "%f", &minMod)
		fmt.Sscanf(quality.quality, "%f", &maxMod)
		return vmaf.QualityRange{UsesBitrate: true, MinMod: minMod, MaxMod: maxMod}
	}

	min, _ := strconv.Atoi(quality.quality)
	max, _ := strconv.Atoi(speed.quality)
	return vmaf.QualityRange{Min: min, Max: max}
}

// QualityFlagFor returns the ffmpeg quality flag (e.g. "-crf", "-b:v") an
// encoder uses and whether its value is a bitrate-modifier fraction rather
// than a fixed CRF/CQ/QP. The flag is the same across all three quality
// tiers for a given encoder, so any tier's entry will do; "balanced" is
// used because every table entry defines it.
func QualityFlagFor(key EncoderKey) (flag string, usesBitrate bool) {
	tiers, ok := qualityTable[key]
	if !ok {
		tiers = qualityTable[EncoderKey{AccelNone, key.Codec}]
	}
	setting := tiers["balanced"]
	return setting.qualityFlag, setting.usesBitrate
}

// BitrateKbpsFor converts a bitrate-modifier fraction into the clamped
// target bitrate (in kbps, as a "-b:v" value like "3500k") BuildArgs itself
// would compute for the same source bitrate, so callers driving a
// modifier arrived at outside the quality table (the VMAF search) produce
// an identical value string.
func BitrateKbpsFor(sourceBitrate int64, modifier float64) string {
	targetKbps := int64(float64(sourceBitrate) * modifier / 1000)
	if targetKbps < minBitrateKbps {
		targetKbps = minBitrateKbps
	}
	if targetKbps > maxBitrateKbps {
		targetKbps = maxBitrateKbps
	}
	return fmt.Sprintf("%dk", targetKbps)
}

// HDRPolicy describes how the encode should handle HDR source metadata.
type HDRPolicy struct {
	Tonemap   bool
	Algorithm string
	Peak      float64
	Desat     float64
}

// BuildArgsInput collects everything BuildArgs needs to assemble the
// ffmpeg command line for one attempt.
type BuildArgsInput struct {
	Accel         Accel
	Codec         Codec
	QualityProfile string
	SourceBitrate int64 // bits/sec, for VideoToolbox's dynamic bitrate calc
	Threads       int
	IsHDR         bool
	HDR           HDRPolicy
	VAAPIDevice   string
	SubtitleMap   []int // absolute stream indices to keep; nil = map all subtitle streams
}

// BuildArgs assembles the ffmpeg argument list (everything after "-i
// input") for one encode attempt: video filter chain, encoder + quality
// flags, and stream mapping that copies audio/subtitles untouched.
func BuildArgs(in BuildArgsInput) []string {
	setting, ok := qualityTable[EncoderKey{in.Accel, in.Codec}][in.QualityProfile]
	if !ok {
		setting = qualityTable[EncoderKey{AccelNone, in.Codec}]["balanced"]
	}

	var args []string

	if filter := buildFilterChain(in); filter != "" {
		args = append(args, "-vf", filter)
	}

	encoderName := ""
	for _, def := range encoderDefs {
		if def.Accel == in.Accel && def.Codec == in.Codec {
			encoderName = def.FFmpegName
			break
		}
	}
	args = append(args, "-c:v", encoderName)

	qualityStr := setting.quality
	if setting.usesBitrate && in.SourceBitrate > 0 {
		modifier := 0.5
		fmt.Sscanf(setting.quality, "%f", &modifier)
		targetKbps := int64(float64(in.SourceBitrate) * modifier / 1000)
		if targetKbps < minBitrateKbps {
			targetKbps = minBitrateKbps
		}
		if targetKbps > maxBitrateKbps {
			targetKbps = maxBitrateKbps
		}
		qualityStr = fmt.Sprintf("%dk", targetKbps)
	}
	args = append(args, setting.qualityFlag, qualityStr)
	args = append(args, setting.extraArgs...)

	if in.Threads > 0 && in.Accel == AccelNone {
		args = append(args, "-threads", fmt.Sprint(in.Threads))
	}

	args = append(args, "-map", "0:v:0", "-c:a", "copy")
	if in.SubtitleMap == nil {
		args = append(args, "-map", "0:a", "-map", "0:s?", "-c:s", "copy")
	} else {
		args = append(args, "-map", "0:a")
		for _, idx := range in.SubtitleMap {
			args = append(args, "-map", fmt.Sprintf("0:%d", idx))
		}
		if len(in.SubtitleMap) > 0 {
			args = append(args, "-c:s", "copy")
		}
	}

	if in.Accel == AccelVAAPI {
		device := in.VAAPIDevice
		if device == "" {
			device = "/dev/dri/renderD128"
		}
		args = append([]string{"-vaapi_device", device}, args...)
	}

	return args
}

// TonemapFilter builds the zscale/tonemap/zscale filter chain that converts
// an HDR (PQ/HLG) source down to SDR. Shared by BuildArgs and the VMAF
// search's sample encoder so the quality a search measures matches what a
// real encode would produce.
func TonemapFilter(policy HDRPolicy) string {
	return fmt.Sprintf(
		"zscale=t=linear:npl=%g,format=gbrpf32le,zscale=p=bt709,tonemap=%s:desat=%g,zscale=t=bt709:m=bt709:r=tv,format=yuv420p",
		policy.Peak, policy.Algorithm, policy.Desat,
	)
}

// buildFilterChain assembles the -vf value: HDR tonemap (if requested) and
// VAAPI's mandatory upload step. Preserve-HDR passes transfer/primaries
// metadata through untouched and needs no filter.
func buildFilterChain(in BuildArgsInput) string {
	var filters []string

	if in.IsHDR && in.HDR.Tonemap {
		filters = append(filters, TonemapFilter(in.HDR))
	}

	if in.Accel == AccelVAAPI {
		if len(filters) > 0 {
			filters = append(filters, "hwupload")
		} else {
			filters = append(filters, "format=nv12,hwupload")
		}
	}

	if len(filters) == 0 {
		return ""
	}
	joined := filters[0]
	for _, f := range filters[1:] {
		joined += "," + f
	}
	return joined
}

package analyzer

import (
	"fmt"
	"math"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/jobs"
)

// codecFamilies groups codec names ffprobe may report under a single
// target identity, mirroring the teacher's isHEVCCodec/isAV1Codec helpers.
var codecFamilies = map[string][]string{
	"hevc": {"hevc", "h265", "x265"},
	"av1":  {"av1", "libaom-av1", "libsvtav1"},
	"h264": {"h264", "x264", "avc"},
}

// targetBitsPerPixel are the per-profile BPP a well-compressed output in
// that codec is expected to land at; used only to estimate the savings
// percentage reported in an Encode decision, never as a pass/fail gate.
var targetBitsPerPixel = map[string]map[string]float64{
	"hevc": {"speed": 0.06, "balanced": 0.045, "quality": 0.035},
	"av1":  {"speed": 0.045, "balanced": 0.032, "quality": 0.024},
	"h264": {"speed": 0.09, "balanced": 0.075, "quality": 0.06},
}

func inFamily(codec, family string) bool {
	for _, name := range codecFamilies[family] {
		if name == codec {
			return true
		}
	}
	return false
}

// Decide applies the ordered decision rules from a probed Metadata and the
// settings snapshot in effect, returning the action and a human-readable
// reason that is persisted verbatim as the Decision's Reason.
func Decide(meta Metadata, settings config.TranscodeSettings) (jobs.DecisionAction, string) {
	minSizeBytes := int64(settings.MinFileSizeMB) * 1024 * 1024
	if meta.SizeBytes < minSizeBytes {
		return jobs.DecisionSkip, "file too small"
	}

	if inFamily(meta.VideoCodec, settings.OutputCodec) {
		bpp := meta.BitsPerPixel()
		if bpp > 0 && bpp < settings.MinBPPThreshold {
			return jobs.DecisionSkip, "already target codec and efficient"
		}
	}

	if meta.Duration <= 0 || meta.Width <= 0 || meta.Height <= 0 {
		return jobs.DecisionSkip, "unsupported source"
	}

	pct := estimateSavingsPercent(meta, settings)
	return jobs.DecisionEncode, fmt.Sprintf("expected savings %.0f%%", pct)
}

// estimateSavingsPercent compares the source's current bits-per-pixel
// against the target codec/profile's typical bits-per-pixel. A source
// already more efficient than the target floors the estimate at 0 rather
// than reporting a negative savings figure.
func estimateSavingsPercent(meta Metadata, settings config.TranscodeSettings) float64 {
	currentBPP := meta.BitsPerPixel()
	if currentBPP <= 0 {
		return 0
	}
	targetBPP, ok := targetBitsPerPixel[settings.OutputCodec][settings.QualityProfile]
	if !ok {
		targetBPP = targetBitsPerPixel["hevc"]["balanced"]
	}
	pct := (1 - targetBPP/currentBPP) * 100
	return math.Max(0, pct)
}

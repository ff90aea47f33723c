package vmaf

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/alchemist-io/alchemist/internal/logger"
)

// TonemapConfig mirrors the encode-time HDR handling so the reference leg
// of a VMAF comparison can be brought to the same color space as the
// (already tonemapped) distorted leg.
type TonemapConfig struct {
	Enabled   bool
	Algorithm string
}

func buildSDRScoringFilter(model string, threads int) string {
	return fmt.Sprintf(
		"[0:v]format=yuv420p[dist];[1:v]format=yuv420p[ref];"+
			"[dist][ref]libvmaf=model=version=%s:n_threads=%d:log_fmt=json:log_path=/dev/stdout",
		model, threads)
}

// buildHDRScoringFilter tonemaps the HDR reference leg down to SDR to
// match the distorted leg, which was already tonemapped during encoding.
// Linearize -> convert primaries -> tonemap -> apply bt709 transfer.
func buildHDRScoringFilter(model string, threads int, algorithm string) string {
	return fmt.Sprintf(
		"[0:v]format=yuv420p[dist];"+
			"[1:v]zscale=pin=bt2020:tin=smpte2084:min=bt2020nc:t=linear:npl=1000,"+
			"format=gbrpf32le,"+
			"zscale=p=bt709,"+
			"tonemap=%s:desat=0:peak=100,"+
			"zscale=t=bt709:m=bt709,"+
			"format=yuv420p[ref];"+
			"[dist][ref]libvmaf=model=version=%s:n_threads=%d:log_fmt=json:log_path=/dev/stdout",
		algorithm, model, threads)
}

// ThreadCount returns the per-analysis thread count, pinned to half the
// available CPUs so a concurrent analysis doesn't starve the scheduler's
// other work.
func ThreadCount() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// Score runs one reference/distorted comparison and returns the VMAF
// score. The process is niced down so analysis yields to active encodes.
func Score(ctx context.Context, ffmpegPath, referencePath, distortedPath string, height int, model string, tonemap *TonemapConfig) (float64, error) {
	threads := ThreadCount()

	var filterComplex string
	if tonemap != nil && tonemap.Enabled {
		algorithm := tonemap.Algorithm
		if algorithm == "" {
			algorithm = "hable"
		}
		filterComplex = buildHDRScoringFilter(model, threads, algorithm)
	} else {
		filterComplex = buildSDRScoringFilter(model, threads)
	}

	args := []string{
		"-threads", fmt.Sprint(threads),
		"-filter_threads", fmt.Sprint(threads),
		"-i", distortedPath,
		"-i", referencePath,
		"-filter_complex", filterComplex,
		"-f", "null", "-",
	}

	niceArgs := append([]string{"-n", "19", ffmpegPath}, args...)
	cmd := exec.CommandContext(ctx, "nice", niceArgs...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("vmaf scoring failed", "error", err, "stderr", lastLines(string(out), 5))
		return 0, fmt.Errorf("vmaf scoring: %w", err)
	}

	return parseVMafScore(string(out))
}

var vmafScorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`VMAF score:\s*([\d.]+)`),
	regexp.MustCompile(`"vmaf"[^}]*"mean":\s*([\d.]+)`),
	regexp.MustCompile(`vmaf_v.*mean:\s*([\d.]+)`),
}

func parseVMafScore(output string) (float64, error) {
	for _, re := range vmafScorePatterns {
		if m := re.FindStringSubmatch(output); len(m) >= 2 {
			if score, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64); err == nil {
				return score, nil
			}
		}
	}
	return 0, fmt.Errorf("could not parse VMAF score from encoder output")
}

// trimmedMean drops the lowest and highest of 3+ scores before averaging,
// so one outlier sample doesn't sway the overall verdict.
func trimmedMean(scores []float64) float64 {
	switch len(scores) {
	case 0:
		return 0
	case 1:
		return scores[0]
	case 2:
		return (scores[0] + scores[1]) / 2
	}

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, s := range sorted[1 : len(sorted)-1] {
		sum += s
	}
	return sum / float64(len(sorted)-2)
}

// ScoreSamples scores each reference/distorted sample pair and returns the
// trimmed mean across all pairs.
func ScoreSamples(ctx context.Context, ffmpegPath string, referenceSamples, distortedSamples []*Sample, height int, model string, tonemap *TonemapConfig) (float64, error) {
	if len(referenceSamples) != len(distortedSamples) {
		return 0, fmt.Errorf("sample count mismatch: %d vs %d", len(referenceSamples), len(distortedSamples))
	}

	scores := make([]float64, 0, len(referenceSamples))
	for i := range referenceSamples {
		score, err := Score(ctx, ffmpegPath, referenceSamples[i].Path, distortedSamples[i].Path, height, model, tonemap)
		if err != nil {
			return 0, fmt.Errorf("scoring sample %d: %w", i, err)
		}
		logger.Debug("sample vmaf score", "sample", i, "score", score)
		scores = append(scores, score)
	}

	result := trimmedMean(scores)
	logger.Info("vmaf trimmed mean", "scores", scores, "result", result)
	return result, nil
}

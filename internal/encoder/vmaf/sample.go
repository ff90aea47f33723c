package vmaf

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alchemist-io/alchemist/internal/logger"
)

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// Sample is one extracted clip used as a quality-comparison reference.
type Sample struct {
	Path     string
	Position time.Duration
	Duration time.Duration
}

// SampleDuration is the fixed length of each extracted clip.
const SampleDuration = 20 * time.Second

// SamplePositions returns the fractional source positions to sample.
// Fast analysis uses a single midpoint sample; full analysis uses three,
// spread across the source so one encoder setting's quality isn't judged
// from a single unrepresentative scene.
func SamplePositions(videoDuration time.Duration, fast bool) []float64 {
	if videoDuration.Seconds() < 60 || fast {
		return []float64{0.5}
	}
	return []float64{0.25, 0.50, 0.75}
}

// ExtractSamples cuts clips at positions via stream copy -- fast, but
// keyframe-aligned rather than frame-exact. Tonemapping, if needed, is
// applied later during scoring, not here.
func ExtractSamples(ctx context.Context, ffmpegPath, inputPath, tempDir string, videoDuration time.Duration, positions []float64) ([]*Sample, error) {
	samples := make([]*Sample, 0, len(positions))

	for i, pos := range positions {
		start := time.Duration(float64(videoDuration) * pos)
		if start+SampleDuration > videoDuration {
			start = videoDuration - SampleDuration
			if start < 0 {
				start = 0
			}
		}

		samplePath := filepath.Join(tempDir, fmt.Sprintf("sample_%d.mkv", i))
		args := []string{
			"-ss", fmt.Sprintf("%.3f", start.Seconds()),
			"-i", inputPath,
			"-t", fmt.Sprintf("%.0f", SampleDuration.Seconds()),
			"-c:v", "copy",
			"-an", "-sn",
			"-y", samplePath,
		}

		cmd := exec.CommandContext(ctx, ffmpegPath, args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			logger.Error("sample extraction failed", "sample", i, "error", err, "stderr", lastLines(string(out), 5))
			CleanupSamples(samples)
			return nil, fmt.Errorf("extract sample %d: %w", i, err)
		}

		samples = append(samples, &Sample{Path: samplePath, Position: start, Duration: SampleDuration})
	}

	return samples, nil
}

// CleanupSamples removes the files backing samples, ignoring files that
// are already gone.
func CleanupSamples(samples []*Sample) {
	for _, s := range samples {
		os.Remove(s.Path)
	}
}

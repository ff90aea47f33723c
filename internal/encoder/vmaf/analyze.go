package vmaf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alchemist-io/alchemist/internal/logger"
)

// Analyzer drives a quality-floor search for one job: extract reference
// samples, binary-search the encoder's quality knob, and expand from a
// fast single-sample pass to a full three-sample pass when the result
// lands close enough to the threshold that one scene could be misleading.
type Analyzer struct {
	FFmpegPath   string
	TempDir      string
	Detector     *Detector
	FastAnalysis bool
	Threshold    float64
}

// NewAnalyzer returns an Analyzer backed by the given detector and temp
// directory for sample scratch files.
func NewAnalyzer(ffmpegPath, tempDir string, detector *Detector, fastAnalysis bool, threshold float64) *Analyzer {
	return &Analyzer{FFmpegPath: ffmpegPath, TempDir: tempDir, Detector: detector, FastAnalysis: fastAnalysis, Threshold: threshold}
}

// Analyze finds the loosest quality setting for inputPath that keeps VMAF
// at or above the configured threshold, encoding trial samples through
// encodeSample rather than the real output file.
func (a *Analyzer) Analyze(ctx context.Context, inputPath string, videoDuration time.Duration, height int, qRange QualityRange, tonemap *TonemapConfig, encodeSample EncodeSampleFunc) (*AnalysisResult, error) {
	if !a.Detector.Available() {
		return nil, fmt.Errorf("vmaf not available")
	}

	analysisDir := filepath.Join(a.TempDir, fmt.Sprintf("vmaf_%d", time.Now().UnixNano()))
	if err := os.MkdirAll(analysisDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating analysis dir: %w", err)
	}
	defer os.RemoveAll(analysisDir)

	model := a.Detector.SelectModel(height)
	positions := SamplePositions(videoDuration, a.FastAnalysis)

	logger.Info("starting vmaf analysis", "input", inputPath, "samples", len(positions), "threshold", a.Threshold)

	referenceSamples, err := ExtractSamples(ctx, a.FFmpegPath, inputPath, analysisDir, videoDuration, positions)
	if err != nil {
		return nil, fmt.Errorf("extracting samples: %w", err)
	}
	defer CleanupSamples(referenceSamples)

	result, err := BinarySearch(ctx, a.FFmpegPath, referenceSamples, qRange, a.Threshold, height, model, tonemap, encodeSample)
	if err != nil {
		return nil, fmt.Errorf("binary search: %w", err)
	}
	if result == nil {
		return &AnalysisResult{ShouldSkip: true, SkipReason: "no quality setting meets the configured VMAF floor"}, nil
	}

	if a.FastAnalysis && len(positions) == 1 && result.Score < a.Threshold+5 {
		logger.Info("expanding to full analysis", "score", result.Score, "threshold", a.Threshold)

		fullPositions := []float64{0.25, 0.5, 0.75}
		fullSamples, err := ExtractSamples(ctx, a.FFmpegPath, inputPath, analysisDir, videoDuration, fullPositions)
		if err != nil {
			return nil, fmt.Errorf("extracting full samples: %w", err)
		}
		defer CleanupSamples(fullSamples)

		result, err = BinarySearch(ctx, a.FFmpegPath, fullSamples, qRange, a.Threshold, height, model, tonemap, encodeSample)
		if err != nil {
			return nil, fmt.Errorf("full binary search: %w", err)
		}
		if result == nil {
			return &AnalysisResult{ShouldSkip: true, SkipReason: "no quality setting meets the configured VMAF floor"}, nil
		}
		positions = fullPositions
	}

	return &AnalysisResult{
		Quality:     fmt.Sprint(result.Quality),
		Modifier:    result.Modifier,
		Score:       result.Score,
		SamplesUsed: len(positions),
	}, nil
}

package vmaf

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alchemist-io/alchemist/internal/logger"
)

const (
	// minModRange is the smallest bitrate-modifier spread worth searching;
	// below it the quality delta is imperceptible.
	minModRange = 0.05

	// maxSearchIters bounds search iterations (after the two bound
	// probes) so sampling noise near the boundary can't cause thrashing.
	maxSearchIters = 4

	baseTolerance = 0.5
	toleranceStep = 0.5
)

// QualityRange bounds a search: either an integer CRF/CQ/QP range, or a
// bitrate-modifier fraction range for encoders (VideoToolbox) that only
// expose a bitrate control.
type QualityRange struct {
	Min, Max       int
	UsesBitrate    bool
	MinMod, MaxMod float64
}

// SearchResult is the quality setting the search converged on.
type SearchResult struct {
	Quality    int
	Modifier   float64
	Score      float64
	Iterations int
}

// EncodeSampleFunc encodes one reference sample at a candidate quality
// setting and returns the path to the encoded clip.
type EncodeSampleFunc func(ctx context.Context, samplePath string, quality int, modifier float64) (string, error)

// BinarySearch finds the loosest (most compressed) quality setting whose
// VMAF score still meets threshold, using interpolated bisection rather
// than naive midpoint halving to converge in fewer encode+score rounds.
func BinarySearch(ctx context.Context, ffmpegPath string, referenceSamples []*Sample, qRange QualityRange, threshold float64, height int, model string, tonemap *TonemapConfig, encodeSample EncodeSampleFunc) (*SearchResult, error) {
	if len(referenceSamples) == 0 {
		return nil, fmt.Errorf("no reference samples provided")
	}

	s := &sampleScorer{ctx: ctx, ffmpegPath: ffmpegPath, referenceSamples: referenceSamples, height: height, model: model, tonemap: tonemap, encodeSample: encodeSample}

	if qRange.UsesBitrate {
		if qRange.MinMod >= qRange.MaxMod {
			return nil, fmt.Errorf("invalid bitrate range: min %.3f >= max %.3f", qRange.MinMod, qRange.MaxMod)
		}
		return interpolatedSearchBitrate(s, qRange, threshold)
	}

	if qRange.Min >= qRange.Max {
		return nil, fmt.Errorf("invalid quality range: min %d >= max %d", qRange.Min, qRange.Max)
	}
	return interpolatedSearchCRF(s, qRange, threshold)
}

type sampleScorer struct {
	ctx              context.Context
	ffmpegPath       string
	referenceSamples []*Sample
	height           int
	model            string
	tonemap          *TonemapConfig
	encodeSample     EncodeSampleFunc
	testCount        int
}

func (s *sampleScorer) scoreCRF(crf int) (float64, error) {
	s.testCount++
	start := time.Now()

	distorted := make([]*Sample, 0, len(s.referenceSamples))
	for i, ref := range s.referenceSamples {
		path, err := s.encodeSample(s.ctx, ref.Path, crf, 0)
		if err != nil {
			CleanupSamples(distorted)
			return 0, fmt.Errorf("encoding sample %d at quality %d: %w", i, crf, err)
		}
		distorted = append(distorted, &Sample{Path: path})
	}
	encodeDuration := time.Since(start)

	scoreStart := time.Now()
	score, err := ScoreSamples(s.ctx, s.ffmpegPath, s.referenceSamples, distorted, s.height, s.model, s.tonemap)
	scoreDuration := time.Since(scoreStart)
	CleanupSamples(distorted)
	if err != nil {
		return 0, fmt.Errorf("scoring at quality %d: %w", crf, err)
	}

	logger.Info("vmaf search iteration", "quality", crf, "score", score, "encode_time", encodeDuration, "score_time", scoreDuration)
	return score, nil
}

func (s *sampleScorer) scoreModifier(mod float64) (float64, error) {
	s.testCount++
	start := time.Now()

	distorted := make([]*Sample, 0, len(s.referenceSamples))
	for i, ref := range s.referenceSamples {
		path, err := s.encodeSample(s.ctx, ref.Path, 0, mod)
		if err != nil {
			CleanupSamples(distorted)
			return 0, fmt.Errorf("encoding sample %d at modifier %.3f: %w", i, mod, err)
		}
		distorted = append(distorted, &Sample{Path: path})
	}
	encodeDuration := time.Since(start)

	scoreStart := time.Now()
	score, err := ScoreSamples(s.ctx, s.ffmpegPath, s.referenceSamples, distorted, s.height, s.model, s.tonemap)
	scoreDuration := time.Since(scoreStart)
	CleanupSamples(distorted)
	if err != nil {
		return 0, fmt.Errorf("scoring at modifier %.3f: %w", mod, err)
	}

	logger.Info("vmaf search iteration", "modifier", mod, "score", score, "encode_time", encodeDuration, "score_time", scoreDuration)
	return score, nil
}

func interpolatedSearchCRF(s *sampleScorer, qRange QualityRange, threshold float64) (*SearchResult, error) {
	betterCRF, worseCRF := qRange.Min, qRange.Max

	betterScore, err := s.scoreCRF(betterCRF)
	if err != nil {
		return nil, err
	}
	if betterScore < threshold {
		return nil, nil
	}

	worseScore, err := s.scoreCRF(worseCRF)
	if err != nil {
		return nil, err
	}
	if worseScore >= threshold {
		return &SearchResult{Quality: worseCRF, Score: worseScore, Iterations: s.testCount}, nil
	}

	for iter := 1; iter <= maxSearchIters; iter++ {
		if worseCRF-betterCRF <= 1 {
			break
		}

		var next int
		if iter == 1 {
			next = betterCRF + int(0.8*float64(worseCRF-betterCRF))
		} else {
			next = interpolateInt(betterCRF, betterScore, worseCRF, worseScore, threshold)
		}
		next = clampInterior(next, betterCRF, worseCRF)
		if next <= betterCRF || next >= worseCRF {
			break
		}

		score, err := s.scoreCRF(next)
		if err != nil {
			return nil, err
		}

		if score >= threshold {
			betterCRF, betterScore = next, score
		} else {
			worseCRF, worseScore = next, score
		}

		if shouldTerminateCRF(worseCRF-betterCRF, betterScore, threshold, iter) {
			break
		}
	}

	return &SearchResult{Quality: betterCRF, Score: betterScore, Iterations: s.testCount}, nil
}

func interpolatedSearchBitrate(s *sampleScorer, qRange QualityRange, threshold float64) (*SearchResult, error) {
	betterMod, worseMod := qRange.MaxMod, qRange.MinMod

	betterScore, err := s.scoreModifier(betterMod)
	if err != nil {
		return nil, err
	}
	if betterScore < threshold {
		return nil, nil
	}

	worseScore, err := s.scoreModifier(worseMod)
	if err != nil {
		return nil, err
	}
	if worseScore >= threshold {
		return &SearchResult{Modifier: worseMod, Score: worseScore, Iterations: s.testCount}, nil
	}

	for iter := 1; iter <= maxSearchIters; iter++ {
		if betterMod-worseMod <= minModRange {
			break
		}

		var next float64
		if iter == 1 {
			next = betterMod - 0.8*(betterMod-worseMod)
		} else {
			next = interpolateFloat(betterMod, betterScore, worseMod, worseScore, threshold)
		}
		next = clampInteriorFloat(next, worseMod, betterMod)
		if next <= worseMod+minModRange/2 || next >= betterMod-minModRange/2 {
			break
		}

		score, err := s.scoreModifier(next)
		if err != nil {
			return nil, err
		}

		if score >= threshold {
			betterMod, betterScore = next, score
		} else {
			worseMod, worseScore = next, score
		}

		if shouldTerminateBitrate(betterMod-worseMod, betterScore, threshold, iter) {
			break
		}
	}

	return &SearchResult{Modifier: betterMod, Score: betterScore, Iterations: s.testCount}, nil
}

func shouldTerminateCRF(rangeSize int, bestScore, threshold float64, iter int) bool {
	if iter < 2 {
		return false
	}
	tolerance := baseTolerance + float64(iter-1)*toleranceStep
	return rangeSize <= 3 && bestScore >= threshold && bestScore-threshold <= tolerance
}

func shouldTerminateBitrate(rangeSize, bestScore, threshold float64, iter int) bool {
	if iter < 2 {
		return false
	}
	tolerance := baseTolerance + float64(iter-1)*toleranceStep
	return rangeSize <= minModRange*3 && bestScore >= threshold && bestScore-threshold <= tolerance
}

func interpolateInt(betterVal int, betterScore float64, worseVal int, worseScore, threshold float64) int {
	denom := betterScore - worseScore
	if denom <= 0 {
		return (betterVal + worseVal) / 2
	}
	f := (threshold - worseScore) / denom
	return int(math.Round(float64(worseVal) + f*float64(betterVal-worseVal)))
}

func interpolateFloat(betterVal, betterScore, worseVal, worseScore, threshold float64) float64 {
	denom := betterScore - worseScore
	if denom <= 0 {
		return (betterVal + worseVal) / 2
	}
	f := (threshold - worseScore) / denom
	return worseVal + f*(betterVal-worseVal)
}

func clampInterior(val, low, high int) int {
	if val <= low {
		val = low + 1
	}
	if val >= high {
		val = high - 1
	}
	return val
}

func clampInteriorFloat(val, low, high float64) float64 {
	margin := (high - low) * 0.01
	if margin < minModRange/2 {
		margin = minModRange / 2
	}
	if val <= low+margin {
		val = low + margin
	}
	if val >= high-margin {
		val = high - margin
	}
	return val
}

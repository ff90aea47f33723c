// Package vmaf drives libvmaf-based perceptual quality comparison and the
// binary search that finds the loosest encoder quality setting still
// meeting an operator-configured VMAF floor.
package vmaf

// AnalysisResult is the outcome of one quality-floor search.
type AnalysisResult struct {
	Quality     string  // the quality setting chosen (CRF/CQ/QP, or a bitrate modifier string)
	Modifier    float64 // bitrate modifier, set only when the encoder is bitrate-driven
	Score       float64 // achieved VMAF score
	ShouldSkip  bool    // true if no candidate setting could meet the floor
	SkipReason  string
	SamplesUsed int
}

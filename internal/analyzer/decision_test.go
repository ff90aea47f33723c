package analyzer

import (
	"testing"
	"time"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/jobs"
)

func testSettings() config.TranscodeSettings {
	return config.TranscodeSettings{
		OutputCodec:     "hevc",
		QualityProfile:  "balanced",
		MinBPPThreshold: 0.08,
		MinFileSizeMB:   50,
	}
}

func TestDecide_SkipsTooSmall(t *testing.T) {
	meta := Metadata{SizeBytes: 10 * 1024 * 1024, Duration: time.Minute, Width: 1920, Height: 1080, FrameRate: 24}
	action, reason := Decide(meta, testSettings())
	if action != jobs.DecisionSkip || reason != "file too small" {
		t.Errorf("got %s/%q, want skip/file too small", action, reason)
	}
}

func TestDecide_SkipsAlreadyEfficientTargetCodec(t *testing.T) {
	meta := Metadata{
		SizeBytes: 2000 * 1024 * 1024, Duration: time.Hour, Width: 1920, Height: 1080, FrameRate: 24,
		VideoCodec: "hevc", VideoBitrate: 1_000_000,
	}
	action, reason := Decide(meta, testSettings())
	if action != jobs.DecisionSkip || reason != "already target codec and efficient" {
		t.Errorf("got %s/%q, want skip/already target codec and efficient", action, reason)
	}
}

func TestDecide_SkipsUnsupportedSource(t *testing.T) {
	meta := Metadata{SizeBytes: 2000 * 1024 * 1024, Duration: 0}
	action, reason := Decide(meta, testSettings())
	if action != jobs.DecisionSkip || reason != "unsupported source" {
		t.Errorf("got %s/%q, want skip/unsupported source", action, reason)
	}
}

func TestDecide_EncodesHighBitrateH264Source(t *testing.T) {
	meta := Metadata{
		SizeBytes: 4000 * 1024 * 1024, Duration: 2 * time.Hour, Width: 1920, Height: 1080, FrameRate: 24,
		VideoCodec: "h264", VideoBitrate: 8_000_000,
	}
	action, _ := Decide(meta, testSettings())
	if action != jobs.DecisionEncode {
		t.Errorf("action = %s, want encode", action)
	}
}

func TestDecide_RuleOrderSizeBeatsCodecCheck(t *testing.T) {
	// A tiny file already in the target codec should still be skipped for
	// size, not for being "already efficient" -- rule 1 must win.
	meta := Metadata{
		SizeBytes: 1024, Duration: time.Second, Width: 1920, Height: 1080, FrameRate: 24,
		VideoCodec: "hevc", VideoBitrate: 100,
	}
	_, reason := Decide(meta, testSettings())
	if reason != "file too small" {
		t.Errorf("reason = %q, want file too small (rule order)", reason)
	}
}

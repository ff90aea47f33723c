package vmaf

import "testing"

func TestDetectorAvailableBeforeDetect(t *testing.T) {
	d := NewDetector("ffmpeg")
	if d.Available() {
		t.Error("expected Available()=false before Detect is called")
	}
}

func TestSelectModelPrefers4KAboveFullHD(t *testing.T) {
	d := &Detector{models: []string{"vmaf_v0.6.1", "vmaf_4k_v0.6.1"}, probed: true, available: true}
	if got := d.SelectModel(2160); got != "vmaf_4k_v0.6.1" {
		t.Errorf("SelectModel(2160) = %q, want vmaf_4k_v0.6.1", got)
	}
}

func TestSelectModelFallsBackForSDResolutions(t *testing.T) {
	d := &Detector{models: []string{"vmaf_v0.6.1", "vmaf_4k_v0.6.1"}, probed: true, available: true}
	if got := d.SelectModel(1080); got != "vmaf_v0.6.1" {
		t.Errorf("SelectModel(1080) = %q, want vmaf_v0.6.1", got)
	}
}

func TestSelectModelWithNoModelsDetected(t *testing.T) {
	d := &Detector{probed: true, available: true}
	if got := d.SelectModel(1080); got != "vmaf_v0.6.1" {
		t.Errorf("SelectModel() with no models = %q, want default vmaf_v0.6.1", got)
	}
}

package vmaf

import (
	"os/exec"
	"strings"
)

// Detector probes one ffmpeg binary for libvmaf availability and the
// quality models it was compiled with. Instantiable (rather than a
// package-level cache) so a process can hold one per configured encoder
// binary and re-probe after a binary path change.
type Detector struct {
	ffmpegPath string
	available  bool
	models     []string
	probed     bool
}

// NewDetector returns a Detector for the given ffmpeg binary. Call Detect
// once at startup, after the binary path is known.
func NewDetector(ffmpegPath string) *Detector {
	return &Detector{ffmpegPath: ffmpegPath}
}

// Detect runs the libvmaf/model probes. Safe to call multiple times; each
// call re-probes the binary.
func (d *Detector) Detect() {
	d.probed = true

	out, err := exec.Command(d.ffmpegPath, "-filters").Output()
	if err != nil {
		d.available = false
		return
	}

	d.available = strings.Contains(string(out), "libvmaf")
	if !d.available {
		return
	}
	d.models = d.detectModels()
}

// Available reports whether libvmaf was found in the most recent Detect.
func (d *Detector) Available() bool {
	return d.probed && d.available
}

// Models returns the model names discovered by the most recent Detect.
func (d *Detector) Models() []string {
	return d.models
}

// SelectModel picks the best available model for the given output height,
// preferring a 4K-tuned model above 1080p.
func (d *Detector) SelectModel(height int) string {
	if height > 1080 {
		for _, m := range d.models {
			if strings.Contains(m, "4k") {
				return m
			}
		}
	}
	for _, m := range d.models {
		if strings.Contains(m, "vmaf_v0.6.1") && !strings.Contains(m, "4k") {
			return m
		}
	}
	if len(d.models) > 0 {
		return d.models[0]
	}
	return "vmaf_v0.6.1"
}

func (d *Detector) detectModels() []string {
	models := []string{"vmaf_v0.6.1"}
	out, _ := exec.Command(d.ffmpegPath, "-h", "filter=libvmaf").Output()
	if strings.Contains(string(out), "vmaf_4k") {
		models = append(models, "vmaf_4k_v0.6.1")
	}
	return models
}

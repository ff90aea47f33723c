// Package encoder selects a hardware or software encode path, builds the
// flag set for the chosen path, drives the external encoder process, and
// commits or reverts its output atomically.
package encoder

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Accel identifies an acceleration method.
type Accel string

const (
	AccelNone         Accel = "none"
	AccelVideoToolbox Accel = "videotoolbox"
	AccelNVENC        Accel = "nvenc"
	AccelQSV          Accel = "qsv"
	AccelVAAPI        Accel = "vaapi"
)

// Codec identifies a target video codec. Output codec is operator
// configurable (hevc, av1, h264); h264 has no AV1-only hardware paths but
// shares the same detection machinery.
type Codec string

const (
	CodecHEVC Codec = "hevc"
	CodecAV1  Codec = "av1"
	CodecH264 Codec = "h264"
)

// Encoder describes one accel+codec pairing and whether it was found
// working on this host.
type Encoder struct {
	Accel       Accel
	Codec       Codec
	Name        string
	Description string
	FFmpegName  string // e.g. "hevc_videotoolbox"
	Available   bool
}

// EncoderKey uniquely identifies an Encoder.
type EncoderKey struct {
	Accel Accel
	Codec Codec
}

// QSVInitMode records which of QSV's two Linux init incantations worked.
type QSVInitMode int

const (
	QSVInitDirect QSVInitMode = iota
	QSVInitVAAPI
)

// NVENCInitMode records which of NVENC's two init incantations worked.
type NVENCInitMode int

const (
	NVENCInitSimple NVENCInitMode = iota
	NVENCInitExplicit
)

// priority is the deterministic hardware-then-software fallback order used
// by both best-encoder selection and fallback-chain walking.
var priority = []Accel{AccelVideoToolbox, AccelNVENC, AccelQSV, AccelVAAPI, AccelNone}

var encoderDefs = []*Encoder{
	{Accel: AccelVideoToolbox, Codec: CodecHEVC, Name: "VideoToolbox HEVC", FFmpegName: "hevc_videotoolbox"},
	{Accel: AccelNVENC, Codec: CodecHEVC, Name: "NVENC HEVC", FFmpegName: "hevc_nvenc"},
	{Accel: AccelQSV, Codec: CodecHEVC, Name: "Quick Sync HEVC", FFmpegName: "hevc_qsv"},
	{Accel: AccelVAAPI, Codec: CodecHEVC, Name: "VAAPI HEVC", FFmpegName: "hevc_vaapi"},
	{Accel: AccelNone, Codec: CodecHEVC, Name: "Software HEVC", FFmpegName: "libx265", Available: true},

	{Accel: AccelVideoToolbox, Codec: CodecAV1, Name: "VideoToolbox AV1", FFmpegName: "av1_videotoolbox"},
	{Accel: AccelNVENC, Codec: CodecAV1, Name: "NVENC AV1", FFmpegName: "av1_nvenc"},
	{Accel: AccelQSV, Codec: CodecAV1, Name: "Quick Sync AV1", FFmpegName: "av1_qsv"},
	{Accel: AccelVAAPI, Codec: CodecAV1, Name: "VAAPI AV1", FFmpegName: "av1_vaapi"},
	{Accel: AccelNone, Codec: CodecAV1, Name: "Software AV1", FFmpegName: "libsvtav1", Available: true},

	{Accel: AccelNVENC, Codec: CodecH264, Name: "NVENC H.264", FFmpegName: "h264_nvenc"},
	{Accel: AccelQSV, Codec: CodecH264, Name: "Quick Sync H.264", FFmpegName: "h264_qsv"},
	{Accel: AccelVAAPI, Codec: CodecH264, Name: "VAAPI H.264", FFmpegName: "h264_vaapi"},
	{Accel: AccelNone, Codec: CodecH264, Name: "Software H.264", FFmpegName: "libx264", Available: true},
}

// Registry caches per-host encoder detection results. It is safe for
// concurrent use; DetectEncoders is idempotent and memoizes its result.
type Registry struct {
	mu            sync.RWMutex
	encoders      map[EncoderKey]*Encoder
	detected      bool
	vaapiDevice   string
	qsvInitMode   QSVInitMode
	nvencInitMode NVENCInitMode
}

// NewRegistry returns an empty, undetected Registry.
func NewRegistry() *Registry {
	return &Registry{encoders: make(map[EncoderKey]*Encoder)}
}

// DetectEncoders probes ffmpeg's encoder list and, for each hardware
// candidate found listed, runs a tiny lavfi test encode to confirm it
// actually works on this host rather than merely being compiled in.
func (r *Registry) DetectEncoders(ffmpegPath string) map[EncoderKey]*Encoder {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.detected {
		return copyEncoders(r.encoders)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner").Output()
	if err != nil {
		r.encoders[EncoderKey{AccelNone, CodecHEVC}] = &Encoder{
			Accel: AccelNone, Codec: CodecHEVC, Name: "Software HEVC", FFmpegName: "libx265", Available: true,
		}
		r.detected = true
		return copyEncoders(r.encoders)
	}
	listed := string(out)

	for _, def := range encoderDefs {
		enc := *def
		key := EncoderKey{def.Accel, def.Codec}

		if !strings.Contains(listed, def.FFmpegName) {
			enc.Available = false
			r.encoders[key] = &enc
			continue
		}
		if def.Accel == AccelNone {
			enc.Available = true
		} else {
			enc.Available = r.testEncoder(ffmpegPath, def.FFmpegName)
		}
		r.encoders[key] = &enc
	}

	r.detected = true
	return copyEncoders(r.encoders)
}

func detectVAAPIDevice() string {
	entries, err := os.ReadDir("/dev/dri")
	if err != nil {
		return ""
	}
	var devices []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "renderD") {
			devices = append(devices, filepath.Join("/dev/dri", e.Name()))
		}
	}
	sort.Strings(devices)
	if len(devices) > 0 {
		return devices[0]
	}
	return ""
}

// testEncoder runs a tiny lavfi test encode to confirm a hardware path is
// functional, not merely compiled into ffmpeg. QSV and NVENC each have two
// viable init incantations depending on the host; whichever succeeds first
// is remembered for later runtime use.
func (r *Registry) testEncoder(ffmpegPath, ffmpegName string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case strings.Contains(ffmpegName, "qsv") && runtime.GOOS == "linux":
		direct := []string{
			"-init_hw_device", "qsv=qsv", "-filter_hw_device", "qsv",
			"-f", "lavfi", "-i", "color=c=black:s=256x256:d=0.1",
			"-vf", "format=nv12,hwupload=extra_hw_frames=64",
			"-frames:v", "1", "-c:v", ffmpegName, "-f", "null", "-",
		}
		if exec.CommandContext(ctx, ffmpegPath, direct...).Run() == nil {
			r.qsvInitMode = QSVInitDirect
			return true
		}
		device := detectVAAPIDevice()
		if device == "" {
			return false
		}
		r.vaapiDevice = device
		viaVAAPI := []string{
			"-init_hw_device", "vaapi=va:" + device, "-init_hw_device", "qsv=qs@va",
			"-filter_hw_device", "qs",
			"-f", "lavfi", "-i", "color=c=black:s=256x256:d=0.1",
			"-vf", "format=nv12,hwupload=extra_hw_frames=64",
			"-frames:v", "1", "-c:v", ffmpegName, "-f", "null", "-",
		}
		if exec.CommandContext(ctx, ffmpegPath, viaVAAPI...).Run() == nil {
			r.qsvInitMode = QSVInitVAAPI
			return true
		}
		return false

	case strings.Contains(ffmpegName, "vaapi"):
		device := detectVAAPIDevice()
		if device == "" {
			return false
		}
		r.vaapiDevice = device
		args := []string{
			"-init_hw_device", "vaapi=va:" + device, "-filter_hw_device", "va",
			"-f", "lavfi", "-i", "color=c=black:s=256x256:d=0.1",
			"-vf", "format=nv12,hwupload",
			"-frames:v", "1", "-c:v", ffmpegName, "-f", "null", "-",
		}
		return exec.CommandContext(ctx, ffmpegPath, args...).Run() == nil

	case strings.Contains(ffmpegName, "nvenc"):
		simple := []string{
			"-hwaccel", "cuda", "-hwaccel_output_format", "cuda",
			"-f", "lavfi", "-i", "color=c=black:s=256x256:d=0.1",
			"-frames:v", "1", "-c:v", ffmpegName, "-f", "null", "-",
		}
		if exec.CommandContext(ctx, ffmpegPath, simple...).Run() == nil {
			r.nvencInitMode = NVENCInitSimple
			return true
		}
		explicit := []string{
			"-init_hw_device", "cuda=cu:0", "-filter_hw_device", "cu",
			"-hwaccel", "cuda", "-hwaccel_output_format", "cuda",
			"-f", "lavfi", "-i", "color=c=black:s=256x256:d=0.1",
			"-frames:v", "1", "-c:v", ffmpegName, "-f", "null", "-",
		}
		if exec.CommandContext(ctx, ffmpegPath, explicit...).Run() == nil {
			r.nvencInitMode = NVENCInitExplicit
			return true
		}
		return false

	default:
		args := []string{
			"-f", "lavfi", "-i", "color=c=black:s=256x256:d=0.1",
			"-frames:v", "1", "-c:v", ffmpegName, "-f", "null", "-",
		}
		return exec.CommandContext(ctx, ffmpegPath, args...).Run() == nil
	}
}

func (r *Registry) VAAPIDevice() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.vaapiDevice != "" {
		return r.vaapiDevice
	}
	return "/dev/dri/renderD128"
}

func (r *Registry) QSVInitMode() QSVInitMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.qsvInitMode
}

func (r *Registry) NVENCInitMode() NVENCInitMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nvencInitMode
}

func (r *Registry) byKey(accel Accel, codec Codec) *Encoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if enc, ok := r.encoders[EncoderKey{accel, codec}]; ok {
		out := *enc
		return &out
	}
	return nil
}

func softwareFallback(codec Codec) *Encoder {
	switch codec {
	case CodecAV1:
		return &Encoder{Accel: AccelNone, Codec: CodecAV1, Name: "Software AV1", FFmpegName: "libsvtav1", Available: true}
	case CodecH264:
		return &Encoder{Accel: AccelNone, Codec: CodecH264, Name: "Software H.264", FFmpegName: "libx264", Available: true}
	default:
		return &Encoder{Accel: AccelNone, Codec: CodecHEVC, Name: "Software HEVC", FFmpegName: "libx265", Available: true}
	}
}

// BestEncoder returns the highest-priority available path for codec:
// VideoToolbox > NVENC > QSV > VAAPI > Software.
func (r *Registry) BestEncoder(codec Codec) *Encoder {
	for _, accel := range priority {
		if enc := r.byKey(accel, codec); enc != nil && enc.Available {
			return enc
		}
	}
	return softwareFallback(codec)
}

// FallbackEncoder returns the next path after current in priority order, or
// nil if current is already software. Software is always eventually
// reachable as the final link in the chain.
func (r *Registry) FallbackEncoder(current Accel, codec Codec) *Encoder {
	idx := -1
	for i, a := range priority {
		if a == current {
			idx = i
			break
		}
	}
	if idx == -1 || current == AccelNone {
		return nil
	}
	for i := idx + 1; i < len(priority); i++ {
		if priority[i] == AccelNone {
			return softwareFallback(codec)
		}
		if enc := r.byKey(priority[i], codec); enc != nil && enc.Available {
			return enc
		}
	}
	return nil
}

func copyEncoders(src map[EncoderKey]*Encoder) map[EncoderKey]*Encoder {
	dst := make(map[EncoderKey]*Encoder, len(src))
	for k, v := range src {
		c := *v
		dst[k] = &c
	}
	return dst
}

// RequiresSoftwareDecode reports whether the source's codec/profile/bit
// depth is known to not decode on the given hardware path, so the caller
// can switch to software decode proactively instead of discovering the
// failure mid-encode.
func RequiresSoftwareDecode(codec, profile string, bitDepth int, accel Accel) bool {
	if accel == AccelNone {
		return false
	}
	codec = strings.ToLower(codec)
	profile = strings.ToLower(profile)

	if (codec == "h264" || codec == "avc") && bitDepth >= 10 && accel != AccelNVENC {
		return true
	}

	switch accel {
	case AccelQSV:
		if codec == "vc1" || codec == "wmv3" {
			return true
		}
		if codec == "mpeg4" && !strings.HasPrefix(profile, "simple") {
			return true
		}
	case AccelVAAPI:
		if codec == "vc1" || codec == "wmv3" {
			return true
		}
	case AccelNVENC:
		if codec == "vc1" {
			return true
		}
	case AccelVideoToolbox:
	}
	return false
}

package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// SubtitleStream describes one subtitle track, addressable by its absolute
// stream index for -map 0:N.
type SubtitleStream struct {
	Index     int
	CodecName string
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type probeStream struct {
	Index            int    `json:"index"`
	CodecType        string `json:"codec_type"`
	CodecName        string `json:"codec_name"`
	Channels         int    `json:"channels"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	RFrameRate       string `json:"r_frame_rate"`
	AvgFrameRate     string `json:"avg_frame_rate"`
	PixelFormat      string `json:"pix_fmt"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
	ColorTransfer    string `json:"color_transfer"`
	ColorPrimaries   string `json:"color_primaries"`
	ColorSpace       string `json:"color_space"`
}

// Prober wraps the external media-probe binary.
type Prober struct {
	probePath string
}

// NewProber returns a Prober invoking the binary at probePath (e.g.
// "ffprobe").
func NewProber(probePath string) *Prober {
	return &Prober{probePath: probePath}
}

// Probe extracts Metadata for path by shelling out to the probe binary.
func (p *Prober) Probe(ctx context.Context, path string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, p.probePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("probe failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("probe failed: %w", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	meta := &Metadata{Path: path, Container: parsed.Format.FormatName}
	if parsed.Format.Size != "" {
		meta.SizeBytes, _ = strconv.ParseInt(parsed.Format.Size, 10, 64)
	}
	if parsed.Format.BitRate != "" {
		meta.VideoBitrate, _ = strconv.ParseInt(parsed.Format.BitRate, 10, 64)
	}
	if parsed.Format.Duration != "" {
		secs, _ := strconv.ParseFloat(parsed.Format.Duration, 64)
		meta.Duration = time.Duration(secs * float64(time.Second))
	}

	for i := range parsed.Streams {
		stream := &parsed.Streams[i]
		switch stream.CodecType {
		case "video":
			if meta.VideoCodec != "" {
				continue // first video stream wins
			}
			meta.VideoCodec = stream.CodecName
			meta.Width = stream.Width
			meta.Height = stream.Height
			meta.FrameRate = parseFrameRate(stream.RFrameRate)
			if meta.FrameRate == 0 {
				meta.FrameRate = parseFrameRate(stream.AvgFrameRate)
			}
			if stream.BitsPerRawSample != "" {
				meta.BitDepth, _ = strconv.Atoi(stream.BitsPerRawSample)
			}
			if meta.BitDepth == 0 {
				meta.BitDepth = inferBitDepth(stream.PixelFormat)
			}
			meta.ColorTransfer = stream.ColorTransfer
			meta.ColorPrimaries = stream.ColorPrimaries
			meta.ColorSpace = stream.ColorSpace
			meta.IsHDR = detectHDR(stream.ColorTransfer, stream.ColorPrimaries, meta.BitDepth)
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = stream.CodecName
				meta.AudioChannels = stream.Channels
			}
		}
	}

	return meta, nil
}

// ProbeSubtitles returns the subtitle streams of path, nil if there are
// none.
func (p *Prober) ProbeSubtitles(ctx context.Context, path string) ([]SubtitleStream, error) {
	cmd := exec.CommandContext(ctx, p.probePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "s",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("probe failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("probe failed: %w", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	var subs []SubtitleStream
	for _, stream := range parsed.Streams {
		if stream.CodecType == "subtitle" {
			subs = append(subs, SubtitleStream{Index: stream.Index, CodecName: stream.CodecName})
		}
	}
	return subs, nil
}

// detectHDR matches the primary PQ/HLG transfer functions, falling back to
// a 10-bit+bt2020 heuristic for poorly tagged sources.
func detectHDR(colorTransfer, colorPrimaries string, bitDepth int) bool {
	transfer := strings.ToLower(colorTransfer)
	if transfer == "smpte2084" || transfer == "arib-std-b67" {
		return true
	}
	if colorTransfer == "" && bitDepth >= 10 && strings.ToLower(colorPrimaries) == "bt2020" {
		return true
	}
	return false
}

func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}

func inferBitDepth(pixFmt string) int {
	if pixFmt == "" {
		return 8
	}
	if strings.Contains(pixFmt, "10le") || strings.Contains(pixFmt, "10be") || strings.Contains(pixFmt, "p010") {
		return 10
	}
	if strings.Contains(pixFmt, "12le") || strings.Contains(pixFmt, "12be") {
		return 12
	}
	return 8
}

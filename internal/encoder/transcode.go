package encoder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alchemist-io/alchemist/internal/logger"
)

// Progress is one parsed sample of ffmpeg's -progress pipe:1 output.
type Progress struct {
	Frame   int64
	FPS     float64
	Size    int64
	Time    time.Duration
	Bitrate float64
	Speed   float64
	Percent float64
	ETA     time.Duration
}

// Result is the outcome of one completed (not yet committed) transcode
// attempt.
type Result struct {
	InputPath  string
	TempPath   string
	InputSize  int64
	OutputSize int64
	Elapsed    time.Duration
}

// Transcoder drives the external encoder binary.
type Transcoder struct {
	ffmpegPath string
}

// NewTranscoder returns a Transcoder invoking the binary at ffmpegPath.
func NewTranscoder(ffmpegPath string) *Transcoder {
	return &Transcoder{ffmpegPath: ffmpegPath}
}

// Transcode runs one encode attempt, writing to tempPath and streaming
// progress on progressCh (closed when ffmpeg's stdout ends). Progress
// updates are sent non-blocking: a stalled consumer drops frames rather
// than pausing the encode.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, tempPath string, args []string, duration time.Duration, progressCh chan<- Progress) (*Result, error) {
	start := time.Now()

	inputInfo, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	cmdArgs := []string{"-i", inputPath, "-y", "-progress", "pipe:1", "-nostats"}
	cmdArgs = append(cmdArgs, args...)
	cmdArgs = append(cmdArgs, tempPath)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, cmdArgs...)
	logger.Debug("encoder command", "args", strings.Join(cmdArgs, " "))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	go parseProgress(stdout, duration, progressCh)

	if err := cmd.Wait(); err != nil {
		os.Remove(tempPath)
		tail := lastLines(stderr.String(), 5)
		if tail != "" {
			logger.Error("encoder failed", "error", err, "stderr", tail)
		}
		return nil, fmt.Errorf("encoder failed: %w", err)
	}

	outputInfo, err := os.Stat(tempPath)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	return &Result{
		InputPath:  inputPath,
		TempPath:   tempPath,
		InputSize:  inputInfo.Size(),
		OutputSize: outputInfo.Size(),
		Elapsed:    time.Since(start),
	}, nil
}

func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// parseProgress reads ffmpeg's key=value progress lines from r and forwards
// a Progress snapshot on every "progress=continue/end" line.
func parseProgress(r interface{ Read([]byte) (int, error) }, duration time.Duration, progressCh chan<- Progress) {
	defer close(progressCh)
	scanner := bufio.NewScanner(r)
	var cur Progress

	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key, value := line[:idx], line[idx+1:]

		switch key {
		case "frame":
			cur.Frame, _ = strconv.ParseInt(value, 10, 64)
		case "fps":
			cur.FPS, _ = strconv.ParseFloat(value, 64)
		case "total_size":
			cur.Size, _ = strconv.ParseInt(value, 10, 64)
		case "out_time_us":
			if value != "N/A" {
				us, _ := strconv.ParseInt(value, 10, 64)
				cur.Time = time.Duration(us) * time.Microsecond
			}
		case "bitrate":
			if value != "N/A" {
				cur.Bitrate, _ = strconv.ParseFloat(strings.TrimSuffix(value, "kbits/s"), 64)
			}
		case "speed":
			if value != "N/A" {
				cur.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
			}
		case "progress":
			if value != "continue" && value != "end" {
				continue
			}
			if duration > 0 {
				cur.Percent = float64(cur.Time) / float64(duration) * 100
				if cur.Percent > 100 {
					cur.Percent = 100
				}
				if cur.Speed > 0 {
					cur.ETA = time.Duration(float64(duration-cur.Time) / cur.Speed)
				}
			}
			select {
			case progressCh <- cur:
			default:
			}
		}
	}
}

// BuildTempPath returns the atomic-commit sibling path for outputPath.
func BuildTempPath(outputPath string) string {
	return outputPath + ".partial"
}

// BuildOutputPath derives the final output path beside the source using
// the configured suffix and extension, e.g. input "/m/show.mkv" with
// suffix "-av1" and extension "mkv" becomes "/m/show-av1.mkv".
func BuildOutputPath(inputPath, suffix, extension string) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s%s.%s", name, suffix, extension))
}

// Commit renames tempPath to outputPath (the final file lands atomically
// inside the target directory) and, if deleteSource is set, removes
// inputPath once the rename has succeeded.
func Commit(inputPath, tempPath, outputPath string, deleteSource bool) error {
	if err := os.Rename(tempPath, outputPath); err != nil {
		return fmt.Errorf("commit output: %w", err)
	}
	if deleteSource && inputPath != outputPath {
		if err := os.Remove(inputPath); err != nil {
			return fmt.Errorf("delete source: %w", err)
		}
	}
	return nil
}

// Revert discards a failed or gate-rejected attempt's temp output, leaving
// the source file untouched.
func Revert(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("revert: remove temp output: %w", err)
	}
	return nil
}

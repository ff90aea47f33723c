// Package config loads process bootstrap configuration and defines the
// EngineSettings snapshot: the operator-tunable options from the external
// interfaces surface, captured immutably at the start of each orchestrator
// attempt so live edits never perturb in-flight jobs.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the process bootstrap configuration: paths, binaries, and the
// initial engine settings used to seed the store on first run.
type Config struct {
	// DBPath is where the embedded SQLite database is written.
	DBPath string `yaml:"db_path"`

	// TempPath is where temporary encode output is written. If empty, temp
	// files are written beside the source file.
	TempPath string `yaml:"temp_path"`

	// FFmpegPath is the path to the media-encoder binary (default: "ffmpeg").
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to the media-probe binary (default: "ffprobe").
	FFprobePath string `yaml:"ffprobe_path"`

	// ListenAddr is the address the HTTP/SSE collaborator binds to.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Engine EngineSettings `yaml:"engine"`
}

// EngineSettings groups the operator-tunable transcode/files/hardware/
// scanner/system options. A copy of this struct is captured by the
// orchestrator at the start of every attempt, so a live settings edit
// never perturbs a job already in flight.
type EngineSettings struct {
	Transcode TranscodeSettings `yaml:"transcode"`
	Files     FileSettings      `yaml:"files"`
	Hardware  HardwareSettings  `yaml:"hardware"`
	Scanner   ScannerSettings   `yaml:"scanner"`
	System    SystemSettings    `yaml:"system"`
}

// Snapshot returns a value copy of the settings, safe to hand to an
// orchestrator attempt without risk of a concurrent settings edit mutating
// it underneath.
func (e EngineSettings) Snapshot() EngineSettings {
	c := e
	c.Scanner.Extensions = append([]string(nil), e.Scanner.Extensions...)
	c.Scanner.ExcludePatterns = append([]string(nil), e.Scanner.ExcludePatterns...)
	c.Scanner.Directories = append([]string(nil), e.Scanner.Directories...)
	return c
}

type TranscodeSettings struct {
	OutputCodec           string  `yaml:"output_codec"`            // av1, hevc, h264
	QualityProfile        string  `yaml:"quality_profile"`         // speed, balanced, quality
	SizeReductionThreshold float64 `yaml:"size_reduction_threshold"` // [0,1]
	MinBPPThreshold        float64 `yaml:"min_bpp_threshold"`
	MinFileSizeMB          int     `yaml:"min_file_size_mb"`
	ConcurrentJobs         int     `yaml:"concurrent_jobs"` // [1,8]
	Threads                int     `yaml:"threads"`         // 0 = auto
	AllowFallback          bool    `yaml:"allow_fallback"`
	HDRMode                string  `yaml:"hdr_mode"` // preserve, tonemap
	TonemapAlgorithm       string  `yaml:"tonemap_algorithm"`
	TonemapPeak            float64 `yaml:"tonemap_peak"`
	TonemapDesat           float64 `yaml:"tonemap_desat"`
	VMafFloor              float64 `yaml:"vmaf_floor"` // 0 = no floor configured
}

type FileSettings struct {
	DeleteSource   bool   `yaml:"delete_source"`
	OutputExtension string `yaml:"output_extension"`
	OutputSuffix    string `yaml:"output_suffix"`
}

type HardwareSettings struct {
	AllowCPUFallback bool   `yaml:"allow_cpu_fallback"`
	AllowCPUEncoding bool   `yaml:"allow_cpu_encoding"`
	CPUPreset        string `yaml:"cpu_preset"`
}

type ScannerSettings struct {
	Directories     []string `yaml:"directories"`
	Extensions      []string `yaml:"extensions"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

type SystemSettings struct {
	MonitoringPollInterval int     `yaml:"monitoring_poll_interval"` // seconds
	EnableTelemetry        bool    `yaml:"enable_telemetry"`
	MaxLoadAverage         float64 `yaml:"max_load_average"` // 0 disables the check; claim loop skips a cycle above this 1-minute load average
}

// DefaultConfig returns a Config with sensible defaults, suitable for a
// first run before any config file or stored settings blob exists.
func DefaultConfig() *Config {
	return &Config{
		DBPath:      "/config/alchemist.db",
		TempPath:    "",
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		ListenAddr:  ":8080",
		LogLevel:    "info",
		Engine: EngineSettings{
			Transcode: TranscodeSettings{
				OutputCodec:            "hevc",
				QualityProfile:         "balanced",
				SizeReductionThreshold: 0.3,
				MinBPPThreshold:        0.08,
				MinFileSizeMB:          50,
				ConcurrentJobs:         1,
				Threads:                0,
				AllowFallback:          true,
				HDRMode:                "preserve",
				TonemapAlgorithm:       "hable",
				TonemapPeak:            1000,
				TonemapDesat:           0,
				VMafFloor:              0,
			},
			Files: FileSettings{
				DeleteSource:    false,
				OutputExtension: "mkv",
				OutputSuffix:    "",
			},
			Hardware: HardwareSettings{
				AllowCPUFallback: true,
				AllowCPUEncoding: true,
				CPUPreset:        "medium",
			},
			Scanner: ScannerSettings{
				Directories:     nil,
				Extensions:      []string{".mkv", ".mp4", ".avi", ".mov", ".m4v", ".ts", ".webm"},
				ExcludePatterns: nil,
			},
			System: SystemSettings{
				MonitoringPollInterval: 30,
				EnableTelemetry:        false,
				MaxLoadAverage:         0,
			},
		},
	}
}

// Load reads config from a YAML file, filling in defaults for missing
// values. If the file doesn't exist, a default config is written and
// returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if saveErr := cfg.Save(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Engine.Transcode.ConcurrentJobs < 1 {
		c.Engine.Transcode.ConcurrentJobs = 1
	}
	if c.Engine.Transcode.OutputCodec == "" {
		c.Engine.Transcode.OutputCodec = "hevc"
	}
	if c.Engine.Transcode.QualityProfile == "" {
		c.Engine.Transcode.QualityProfile = "balanced"
	}
	if c.Engine.Files.OutputExtension == "" {
		c.Engine.Files.OutputExtension = "mkv"
	}
	if !isValidTonemapAlgorithm(c.Engine.Transcode.TonemapAlgorithm) {
		c.Engine.Transcode.TonemapAlgorithm = "hable"
	}
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetTempDir returns the directory for temp files for the given source
// path: TempPath if set, else the source file's own directory.
func (c *Config) GetTempDir(sourcePath string) string {
	if c.TempPath != "" {
		return c.TempPath
	}
	return filepath.Dir(sourcePath)
}

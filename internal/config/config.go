package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RecordingsDir string `toml:"recordings_dir"`
	LogDir        string `toml:"log_dir"`
	WorkDir       string `toml:"work_dir"`
}

// Discovery contains configuration for polling the broadcast schedule.
type Discovery struct {
	ScheduleURL    string `toml:"schedule_url"`
	PollInterval   int    `toml:"poll_interval"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Recorder contains configuration for capture subprocess supervision.
type Recorder struct {
	FFmpegBinary     string `toml:"ffmpeg_binary"`
	StartupTimeout   int    `toml:"startup_timeout"`
	StallTimeout     int    `toml:"stall_timeout"`
	RestartDelay     int    `toml:"restart_delay"`
	RestartMaxDelay  int    `toml:"restart_max_delay"`
	RestartCeiling   int    `toml:"restart_ceiling"`
	StopDrainTimeout int    `toml:"stop_drain_timeout"`
}

// Transcription contains configuration for the live transcription pipeline.
type Transcription struct {
	Enabled          bool   `toml:"enabled"`
	Model            string `toml:"model"`
	Language         string `toml:"language"`
	ChunkSeconds     int    `toml:"chunk_seconds"`
	OverlapSeconds   int    `toml:"overlap_seconds"`
	MaxLagSeconds    int    `toml:"max_lag_seconds"`
	InferenceTimeout int    `toml:"inference_timeout"`
	InitialPrompt    string `toml:"initial_prompt"`
}

// Triggers contains configuration for transcript phrase detection.
type Triggers struct {
	Phrases []string `toml:"phrases"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SessionStart   bool   `toml:"session_start"`
	SessionEnd     bool   `toml:"session_end"`
	Triggers       bool   `toml:"triggers"`
	Errors         bool   `toml:"errors"`
}

// Watcher contains configuration for the session orchestration loop.
type Watcher struct {
	HeartbeatInterval int `toml:"heartbeat_interval"`
	TeardownTimeout   int `toml:"teardown_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for gavel.
//
// Configuration sections by subsystem:
//   - Paths: recordings, log, and scratch directories
//   - Discovery: schedule polling endpoint and cadence
//   - Recorder: capture subprocess restart/backoff/stall policy
//   - Transcription: chunking and whisper backend settings
//   - Triggers: transcript phrases that raise notifications
//   - Notifications: ntfy push notification settings
//   - Watcher: session heartbeat and teardown bounds
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Discovery     Discovery     `toml:"discovery"`
	Recorder      Recorder      `toml:"recorder"`
	Transcription Transcription `toml:"transcription"`
	Triggers      Triggers      `toml:"triggers"`
	Notifications Notifications `toml:"notifications"`
	Watcher       Watcher       `toml:"watcher"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gavel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gavel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for watcher operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RecordingsDir, c.Paths.LogDir, c.Paths.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for capture and extraction.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Recorder.FFmpegBinary) != "" {
		return c.Recorder.FFmpegBinary
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
// An ffprobe that sits next to a configured ffmpeg binary wins over PATH
// resolution, matching how ffmpeg distributions ship the pair together.
func (c *Config) FFprobeBinary() string {
	if ffmpeg := strings.TrimSpace(c.Recorder.FFmpegBinary); ffmpeg != "" {
		sidecar := filepath.Join(filepath.Dir(ffmpeg), "ffprobe")
		if info, err := os.Stat(sidecar); err == nil && !info.IsDir() {
			return sidecar
		}
	}
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

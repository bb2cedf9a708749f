package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir      string `toml:"state_dir"`
	RecordingsDir string `toml:"recordings_dir"`
	LogDir        string `toml:"log_dir"`
}

// Capture contains configuration for screen and microphone acquisition.
type Capture struct {
	Display           string `toml:"display"`
	FrameRate         int    `toml:"frame_rate"`
	SystemAudio       bool   `toml:"system_audio"`
	SystemAudioDevice string `toml:"system_audio_device"`
	Microphone        bool   `toml:"microphone"`
	MicrophoneDevice  string `toml:"microphone_device"`
	ChunkIntervalMS   int    `toml:"chunk_interval_ms"`
}

// ChunkInterval returns the recorder timeslice for live capture.
func (c Capture) ChunkInterval() time.Duration {
	return time.Duration(c.ChunkIntervalMS) * time.Millisecond
}

// Trim contains configuration for the replay re-encode stage.
type Trim struct {
	FrameRate            int  `toml:"frame_rate"`
	ChunkIntervalMS      int  `toml:"chunk_interval_ms"`
	DurationRetryDelayMS int  `toml:"duration_retry_delay_ms"`
	DefaultWidth         int  `toml:"default_width"`
	DefaultHeight        int  `toml:"default_height"`
	SkipFullWindow       bool `toml:"skip_full_window"`
	// Playback plays the replay audio on PlaybackDevice while re-encoding.
	Playback       bool   `toml:"playback"`
	PlaybackDevice string `toml:"playback_device"`
}

// ChunkInterval returns the recorder timeslice used while re-encoding.
func (t Trim) ChunkInterval() time.Duration {
	return time.Duration(t.ChunkIntervalMS) * time.Millisecond
}

// DurationRetryDelay returns how long to wait before re-reading an invalid duration.
func (t Trim) DurationRetryDelay() time.Duration {
	return time.Duration(t.DurationRetryDelayMS) * time.Millisecond
}

// Upload contains configuration for the sharing service client.
type Upload struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DefaultTitle   string `toml:"default_title"`
}

// Timeout returns the HTTP client timeout.
func (u Upload) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// FFmpeg names the external binaries used by the media backend.
type FFmpeg struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for screenclip.
//
// Configuration sections by subsystem:
//   - Paths: state, recordings, and log directories
//   - Capture: display grab and audio devices for live recording
//   - Trim: replay re-encode timing and fallback surface size
//   - Upload: sharing service endpoint and defaults
//   - FFmpeg: external binary names
//   - Logging: log format and level
//   - Metrics: Prometheus textfile destination
type Config struct {
	Paths   Paths   `toml:"paths"`
	Capture Capture `toml:"capture"`
	Trim    Trim    `toml:"trim"`
	Upload  Upload  `toml:"upload"`
	FFmpeg  FFmpeg  `toml:"ffmpeg"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("screenclip.toml")
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

// EnsureDirectories creates the state, recordings, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.RecordingsDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LibraryPath returns the SQLite history database location.
func (c *Config) LibraryPath() string {
	return filepath.Join(c.Paths.StateDir, "library.db")
}

// CaptureLockPath returns the lock file guarding a single active capture.
func (c *Config) CaptureLockPath() string {
	return filepath.Join(c.Paths.StateDir, "capture.lock")
}

// LogPath returns the log file written next to stderr output, or "" when
// file logging is disabled.
func (c *Config) LogPath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "screenclip.log")
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

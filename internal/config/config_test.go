package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"screenclip/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SCREENCLIP_UPLOAD_URL", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "screenclip")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.LibraryPath() != filepath.Join(wantState, "library.db") {
		t.Fatalf("unexpected library path: %q", cfg.LibraryPath())
	}
	if cfg.Capture.FrameRate != 30 || cfg.Trim.FrameRate != 30 {
		t.Fatalf("expected 30fps defaults, got capture=%d trim=%d", cfg.Capture.FrameRate, cfg.Trim.FrameRate)
	}
	if cfg.Capture.ChunkInterval() != time.Second {
		t.Fatalf("unexpected capture chunk interval: %s", cfg.Capture.ChunkInterval())
	}
	if cfg.Trim.ChunkInterval() != 100*time.Millisecond {
		t.Fatalf("unexpected trim chunk interval: %s", cfg.Trim.ChunkInterval())
	}
	if cfg.Trim.DurationRetryDelay() != 500*time.Millisecond {
		t.Fatalf("unexpected duration retry delay: %s", cfg.Trim.DurationRetryDelay())
	}
	if cfg.Upload.DefaultTitle != "My Screen Recording" {
		t.Fatalf("unexpected default title: %q", cfg.Upload.DefaultTitle)
	}
	if err := cfg.RequireUpload(); err == nil {
		t.Fatal("expected RequireUpload to fail without base url")
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("SCREENCLIP_UPLOAD_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := `
[paths]
state_dir = "` + filepath.Join(dir, "state") + `"

[capture]
microphone = false
frame_rate = 24

[upload]
base_url = "https://clips.example.com/"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Capture.Microphone {
		t.Fatal("expected microphone disabled")
	}
	if !cfg.Capture.SystemAudio {
		t.Fatal("expected system audio default preserved")
	}
	if cfg.Capture.FrameRate != 24 {
		t.Fatalf("unexpected frame rate: %d", cfg.Capture.FrameRate)
	}
	if cfg.Upload.BaseURL != "https://clips.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Upload.BaseURL)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.StateDir); err != nil || !info.IsDir() {
		t.Fatalf("expected state dir created: %v", err)
	}
}

func TestEnvUploadURLFallback(t *testing.T) {
	t.Setenv("SCREENCLIP_UPLOAD_URL", "http://localhost:3000")
	path := filepath.Join(t.TempDir(), "empty.toml")
	if err := os.WriteFile(path, []byte("[upload]\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Upload.BaseURL != "http://localhost:3000" {
		t.Fatalf("expected env fallback, got %q", cfg.Upload.BaseURL)
	}
	if err := cfg.RequireUpload(); err != nil {
		t.Fatalf("RequireUpload failed: %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StateDir, "screenclip") {
		t.Fatalf("expected state dir to contain screenclip, got %q", cfg.Paths.StateDir)
	}
	if cfg.Trim.DefaultWidth != 1920 || cfg.Trim.DefaultHeight != 1080 {
		t.Fatalf("unexpected sample surface size: %dx%d", cfg.Trim.DefaultWidth, cfg.Trim.DefaultHeight)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		key    string
	}{
		{"frame rate", func(c *config.Config) { c.Capture.FrameRate = 0 }, "capture.frame_rate"},
		{"capture chunk", func(c *config.Config) { c.Capture.ChunkIntervalMS = 0 }, "capture.chunk_interval_ms"},
		{"trim frame rate", func(c *config.Config) { c.Trim.FrameRate = 500 }, "trim.frame_rate"},
		{"surface width", func(c *config.Config) { c.Trim.DefaultWidth = -1 }, "trim.default_width"},
		{"retry delay", func(c *config.Config) { c.Trim.DurationRetryDelayMS = -5 }, "trim.duration_retry_delay_ms"},
		{"upload timeout", func(c *config.Config) { c.Upload.TimeoutSeconds = 0 }, "upload.timeout_seconds"},
		{"upload scheme", func(c *config.Config) { c.Upload.BaseURL = "ftp://example.com" }, "upload.base_url"},
		{"log level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error to name %q, got %v", tc.key, err)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

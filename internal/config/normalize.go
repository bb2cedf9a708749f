package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeTrim()
	c.normalizeUpload()
	c.normalizeFFmpeg()
	c.normalizeLogging()
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.RecordingsDir) == "" {
		c.Paths.RecordingsDir = defaultRecordingsDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return fmt.Errorf("paths.recordings_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.Display = strings.TrimSpace(c.Capture.Display)
	if c.Capture.Display == "" {
		if value, ok := os.LookupEnv("DISPLAY"); ok && strings.TrimSpace(value) != "" {
			c.Capture.Display = strings.TrimSpace(value)
		} else {
			c.Capture.Display = defaultDisplay
		}
	}
	c.Capture.SystemAudioDevice = strings.TrimSpace(c.Capture.SystemAudioDevice)
	if c.Capture.SystemAudioDevice == "" {
		c.Capture.SystemAudioDevice = defaultSystemAudioDevice
	}
	c.Capture.MicrophoneDevice = strings.TrimSpace(c.Capture.MicrophoneDevice)
	if c.Capture.MicrophoneDevice == "" {
		c.Capture.MicrophoneDevice = defaultMicrophoneDevice
	}
}

func (c *Config) normalizeTrim() {
	c.Trim.PlaybackDevice = strings.TrimSpace(c.Trim.PlaybackDevice)
	if c.Trim.PlaybackDevice == "" {
		c.Trim.PlaybackDevice = defaultPlaybackDevice
	}
}

func (c *Config) normalizeUpload() {
	c.Upload.BaseURL = strings.TrimSpace(c.Upload.BaseURL)
	if c.Upload.BaseURL == "" {
		if value, ok := os.LookupEnv(uploadURLEnv); ok {
			c.Upload.BaseURL = strings.TrimSpace(value)
		}
	}
	c.Upload.BaseURL = strings.TrimRight(c.Upload.BaseURL, "/")
	c.Upload.DefaultTitle = strings.TrimSpace(c.Upload.DefaultTitle)
	if c.Upload.DefaultTitle == "" {
		c.Upload.DefaultTitle = defaultUploadTitle
	}
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() error {
	c.Metrics.TextfilePath = strings.TrimSpace(c.Metrics.TextfilePath)
	if c.Metrics.TextfilePath == "" {
		return nil
	}
	var err error
	if c.Metrics.TextfilePath, err = expandPath(c.Metrics.TextfilePath); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

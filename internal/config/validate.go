package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateTrim(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCapture() error {
	if c.Capture.FrameRate < minFrameRate || c.Capture.FrameRate > maxFrameRate {
		return fmt.Errorf("capture.frame_rate must be between %d and %d", minFrameRate, maxFrameRate)
	}
	return ensurePositiveMap(map[string]int{
		"capture.chunk_interval_ms": c.Capture.ChunkIntervalMS,
	})
}

func (c *Config) validateTrim() error {
	if c.Trim.FrameRate < minFrameRate || c.Trim.FrameRate > maxFrameRate {
		return fmt.Errorf("trim.frame_rate must be between %d and %d", minFrameRate, maxFrameRate)
	}
	if err := ensurePositiveMap(map[string]int{
		"trim.chunk_interval_ms": c.Trim.ChunkIntervalMS,
		"trim.default_width":     c.Trim.DefaultWidth,
		"trim.default_height":    c.Trim.DefaultHeight,
	}); err != nil {
		return err
	}
	if c.Trim.DurationRetryDelayMS < 0 {
		return errors.New("trim.duration_retry_delay_ms must not be negative")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.TimeoutSeconds <= 0 {
		return errors.New("upload.timeout_seconds must be positive")
	}
	if c.Upload.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Upload.BaseURL)
	if err != nil {
		return fmt.Errorf("upload.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("upload.base_url must use http or https, got %q", c.Upload.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("upload.base_url is missing a host: %q", c.Upload.BaseURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

// RequireUpload reports an error when no upload endpoint is configured.
func (c *Config) RequireUpload() error {
	if strings.TrimSpace(c.Upload.BaseURL) == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			path = defaultConfigPath
		}
		return fmt.Errorf("upload.base_url is required. Set %s or edit %s (create with 'screenclip config init')", uploadURLEnv, path)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

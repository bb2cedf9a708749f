package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"screenclip/internal/capture"
	"screenclip/internal/config"
	"screenclip/internal/ffmpeg"
	"screenclip/internal/library"
	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/metrics"
	"screenclip/internal/pipeline"
	"screenclip/internal/trim"
	"screenclip/internal/upload"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	storeOnce sync.Once
	store     *library.Store
	storeErr  error

	metrics *metrics.Pipeline
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		metrics:    metrics.New(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) ensureStore() (*library.Store, error) {
	c.storeOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.storeErr = err
			return
		}
		c.store, c.storeErr = library.Open(cfg)
	})
	return c.store, c.storeErr
}

// session bundles everything a pipeline-driving command needs.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *library.Store
	backend  *ffmpeg.Backend
	uploader *upload.Client
	pipeline *pipeline.Pipeline
}

// newSession wires the ffmpeg backend, capture, trim, upload, history, and
// metrics into a pipeline. The upload client is only built when requested.
func (c *commandContext) newSession(withUpload bool) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	store, err := c.ensureStore()
	if err != nil {
		return nil, err
	}

	backend := ffmpeg.New(ffmpeg.FromConfig(cfg, logger))
	s := &session{cfg: cfg, logger: logger, store: store, backend: backend}

	opts := pipeline.Options{
		Acquirer: capture.New(capture.Options{
			Devices:     backend,
			FrameRate:   cfg.Capture.FrameRate,
			SystemAudio: cfg.Capture.SystemAudio,
			Microphone:  cfg.Capture.Microphone,
			Logger:      logger,
		}),
		Recorders:         backend,
		RecorderTimeslice: cfg.Capture.ChunkInterval(),
		Trimmer:           newTrimmer(cfg, backend, logger),
		History:           store,
		Metrics:           c.metrics,
		ArtifactDir:       cfg.Paths.RecordingsDir,
		Logger:            logger,
	}
	if withUpload {
		if err := cfg.RequireUpload(); err != nil {
			return nil, err
		}
		client, err := upload.New(upload.Options{
			BaseURL: cfg.Upload.BaseURL,
			Timeout: cfg.Upload.Timeout(),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		s.uploader = client
		opts.Uploader = client
	}
	s.pipeline = pipeline.New(opts)
	return s, nil
}

func newTrimmer(cfg *config.Config, backend *ffmpeg.Backend, logger *slog.Logger) *trim.Reencoder {
	return trim.New(trim.Options{
		Players:            backend,
		Surfaces:           backend,
		AudioGraphs:        backend,
		Recorders:          backend,
		FrameRate:          cfg.Trim.FrameRate,
		Timeslice:          cfg.Trim.ChunkInterval(),
		DurationRetryDelay: cfg.Trim.DurationRetryDelay(),
		DefaultWidth:       cfg.Trim.DefaultWidth,
		DefaultHeight:      cfg.Trim.DefaultHeight,
		SkipFullWindow:     cfg.Trim.SkipFullWindow,
		Logger:             logger,
	})
}

// newUploadClient builds a client for commands that talk to the service
// without driving a pipeline.
func (c *commandContext) newUploadClient() (*upload.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireUpload(); err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return upload.New(upload.Options{BaseURL: cfg.Upload.BaseURL, Timeout: cfg.Upload.Timeout(), Logger: logger})
}

// run executes fn and then close, joining both errors.
func (c *commandContext) run(fn func() error) error {
	err := fn()
	return errors.Join(err, c.close())
}

// close writes the metrics textfile and releases the history store.
func (c *commandContext) close() error {
	var errs []error
	if c.config != nil && c.config.Metrics.TextfilePath != "" {
		if err := c.metrics.WriteTextfile(c.config.Metrics.TextfilePath); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close library: %w", err))
		}
		c.store = nil
	}
	return errors.Join(errs...)
}

// readArtifact loads an exported container from disk.
func readArtifact(path string) (*media.Container, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("take has no exported recording")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return media.NewContainer(media.ContentTypeWebM, data), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

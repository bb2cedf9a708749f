package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"screenclip/internal/config"
	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/services"
)

const (
	defaultDisplay            = ":0.0"
	defaultSystemAudioDevice  = "@DEFAULT_MONITOR@"
	defaultMicrophoneDevice   = "default"
	defaultProbeTimeout       = 10 * time.Second
	defaultTimeUpdateInterval = 250 * time.Millisecond
	defaultStopGrace          = 5 * time.Second
	stderrTailBytes           = 2048
)

// Config selects binaries, capture sources, and timing.
type Config struct {
	FFmpegBinary      string
	FFprobeBinary     string
	Display           string
	SystemAudioDevice string
	MicrophoneDevice  string
	// PlaybackSink is the PulseAudio sink that replay audio is played on
	// while a trim records it. Empty plays nothing.
	PlaybackSink string
	// WorkDir holds replay and segment spool files. Empty uses os.TempDir.
	WorkDir            string
	ProbeTimeout       time.Duration
	TimeUpdateInterval time.Duration
	// StopGrace bounds how long a stopping recorder may flush before it is killed.
	StopGrace time.Duration
	Logger    *slog.Logger
}

// FromConfig maps the application config onto backend settings.
func FromConfig(cfg *config.Config, logger *slog.Logger) Config {
	if cfg == nil {
		return Config{Logger: logger}
	}
	playback := ""
	if cfg.Trim.Playback {
		playback = cfg.Trim.PlaybackDevice
	}
	return Config{
		PlaybackSink:      playback,
		FFmpegBinary:      cfg.FFmpeg.FFmpegBinary,
		FFprobeBinary:     cfg.FFmpeg.FFprobeBinary,
		Display:           cfg.Capture.Display,
		SystemAudioDevice: cfg.Capture.SystemAudioDevice,
		MicrophoneDevice:  cfg.Capture.MicrophoneDevice,
		WorkDir:           cfg.Paths.RecordingsDir,
		Logger:            logger,
	}
}

// Backend satisfies media.Devices, media.RecorderFactory,
// media.PlayerFactory, media.SurfaceFactory, and media.AudioGraphFactory.
type Backend struct {
	cfg    Config
	logger *slog.Logger
}

var (
	_ media.Devices           = (*Backend)(nil)
	_ media.RecorderFactory   = (*Backend)(nil)
	_ media.PlayerFactory     = (*Backend)(nil)
	_ media.SurfaceFactory    = (*Backend)(nil)
	_ media.AudioGraphFactory = (*Backend)(nil)
)

// New applies defaults to cfg.
func New(cfg Config) *Backend {
	cfg.FFmpegBinary = orDefault(cfg.FFmpegBinary, "ffmpeg")
	cfg.FFprobeBinary = orDefault(cfg.FFprobeBinary, "ffprobe")
	cfg.Display = orDefault(cfg.Display, orDefault(os.Getenv("DISPLAY"), defaultDisplay))
	cfg.SystemAudioDevice = orDefault(cfg.SystemAudioDevice, defaultSystemAudioDevice)
	cfg.MicrophoneDevice = orDefault(cfg.MicrophoneDevice, defaultMicrophoneDevice)
	cfg.WorkDir = orDefault(cfg.WorkDir, os.TempDir())
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.TimeUpdateInterval <= 0 {
		cfg.TimeUpdateInterval = defaultTimeUpdateInterval
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	return &Backend{cfg: cfg, logger: logging.NewComponentLogger(cfg.Logger, "ffmpeg")}
}

// Settings returns the effective configuration after defaults.
func (b *Backend) Settings() Config { return b.cfg }

// probe runs ffmpeg briefly against one input and reports whether it could
// be opened. The error carries the tail of ffmpeg's stderr.
func (b *Backend) probe(ctx context.Context, in input, limit ...string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ProbeTimeout)
	defer cancel()

	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, in.args...)
	args = append(args, limit...)
	args = append(args, "-f", "null", "-")

	stderr := newTail(stderrTailBytes)
	cmd := exec.CommandContext(ctx, b.cfg.FFmpegBinary, args...) //nolint:gosec
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return ctxErr
		}
		return toolError(err, stderr)
	}
	return nil
}

func toolError(err error, stderr *tail) error {
	if detail := stderr.String(); detail != "" {
		return fmt.Errorf("%w: %s", err, detail)
	}
	return err
}

func wrapTool(stage, op string, err error) error {
	return services.Wrap(services.ErrExternalTool, stage, op, "ffmpeg failed", err)
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// tail keeps the last max bytes written to it.
type tail struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTail(max int) *tail { return &tail{max: max} }

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}

package capture

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/services"
)

// DefaultFrameRate is the display capture rate.
const DefaultFrameRate = 30

// Options configures an Acquirer.
type Options struct {
	Devices     media.Devices
	FrameRate   int
	SystemAudio bool
	Microphone  bool
	Logger      *slog.Logger
}

// Acquirer negotiates and merges capture streams.
type Acquirer struct {
	devices     media.Devices
	frameRate   int
	systemAudio bool
	microphone  bool
	logger      *slog.Logger
}

// New builds an Acquirer.
func New(opts Options) *Acquirer {
	rate := opts.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return &Acquirer{
		devices:     opts.Devices,
		frameRate:   rate,
		systemAudio: opts.SystemAudio,
		microphone:  opts.Microphone,
		logger:      logging.NewComponentLogger(opts.Logger, "capture"),
	}
}

// Acquire returns a stream owned by the caller. It may block until the user
// answers the permission prompt. The only error is ErrCaptureDenied (or the
// context error when ctx ends first).
func (a *Acquirer) Acquire(ctx context.Context) (*media.Stream, error) {
	logger := logging.WithContext(ctx, a.logger)

	var display, mic *media.Stream
	var micErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := a.devices.GetDisplayMedia(gctx, media.DisplayRequest{
			FrameRate: a.frameRate,
			Audio:     a.systemAudio,
		})
		if err != nil {
			return err
		}
		display = s
		return nil
	})
	if a.microphone {
		// The microphone runs on the parent context so a display failure does
		// not turn into a spurious microphone warning.
		g.Go(func() error {
			mic, micErr = a.devices.GetUserMedia(ctx, media.UserMediaRequest{Audio: true})
			return nil
		})
	}
	err := g.Wait()

	if err != nil || display == nil || len(display.VideoTracks()) == 0 {
		display.StopAll()
		mic.StopAll()
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		if err == nil {
			err = errors.New("display capture returned no video track")
		}
		logging.WarnWithContext(logger, "display capture denied", "capture_denied",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "grant screen capture permission and try again"),
			logging.String(logging.FieldImpact, "recording not started"),
		)
		return nil, services.Wrap(services.ErrCaptureDenied, "capturing", "acquire display", "display capture was not granted", err)
	}

	merged := display.Transfer()
	switch {
	case !a.microphone:
	case micErr != nil || mic == nil || len(mic.AudioTracks()) == 0:
		if micErr == nil {
			micErr = errors.New("no microphone track granted")
		}
		mic.StopAll()
		logging.WarnWithContext(logger, "microphone unavailable, recording without it", "microphone_unavailable",
			logging.Error(services.Wrap(services.ErrMicrophoneUnavailable, "capturing", "acquire microphone", "", micErr)),
			logging.String(logging.FieldErrorHint, "check capture.microphone_device or disable capture.microphone"),
			logging.String(logging.FieldImpact, "recording continues with display audio only"),
		)
	default:
		for _, track := range mic.Transfer().AudioTracks() {
			merged.AddTrack(track)
		}
	}

	logger.Info("capture acquired",
		logging.Int("video_tracks", len(merged.VideoTracks())),
		logging.Int("audio_tracks", len(merged.AudioTracks())),
		logging.Int("frame_rate", a.frameRate),
	)
	return merged, nil
}

package ffmpeg

import (
	"context"
	"strconv"

	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/services"
)

// GetDisplayMedia grants the configured X11 display and, when requested,
// the system audio monitor source. The display must open or the grant is
// denied; an unavailable audio source only drops the audio track.
func (b *Backend) GetDisplayMedia(ctx context.Context, req media.DisplayRequest) (*media.Stream, error) {
	frameRate := req.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}
	display := b.cfg.Display
	video := newTrack(media.KindVideo, "display "+display, staticInput("x11grab:"+display,
		"-f", "x11grab", "-framerate", strconv.Itoa(frameRate), "-draw_mouse", "1", "-i", display))
	video.frameRate = frameRate
	video.live = true

	if err := b.probe(ctx, video.resolve(), "-frames:v", "1"); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrCaptureDenied, "capturing", "open display",
			"display "+display+" could not be captured", err)
	}
	stream := media.NewStream(video)

	if req.Audio {
		audio, err := b.pulseTrack(ctx, "system audio", b.cfg.SystemAudioDevice)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.WarnWithContext(b.logger, "system audio unavailable", "system_audio_unavailable",
				logging.String("device", b.cfg.SystemAudioDevice),
				logging.Error(err),
				logging.String(logging.FieldImpact, "recording continues without system audio"),
				logging.String(logging.FieldErrorHint, "set capture.system_audio_device to a PulseAudio monitor source"),
			)
		} else {
			stream.AddTrack(audio)
		}
	}
	b.logger.Debug("display granted",
		logging.String("display", display),
		logging.Int("frame_rate", frameRate),
		logging.Int("tracks", stream.Len()),
	)
	return stream, nil
}

// GetUserMedia grants the configured microphone source.
func (b *Backend) GetUserMedia(ctx context.Context, req media.UserMediaRequest) (*media.Stream, error) {
	if !req.Audio {
		return media.NewStream(), nil
	}
	mic, err := b.pulseTrack(ctx, "microphone", b.cfg.MicrophoneDevice)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrMicrophoneUnavailable, "capturing", "open microphone",
			"source "+b.cfg.MicrophoneDevice+" could not be opened", err)
	}
	return media.NewStream(mic), nil
}

func (b *Backend) pulseTrack(ctx context.Context, label, device string) (*track, error) {
	t := newTrack(media.KindAudio, label+" "+device, staticInput("pulse:"+device, "-f", "pulse", "-i", device))
	t.live = true
	if err := b.probe(ctx, t.resolve(), "-t", "0.1"); err != nil {
		return nil, err
	}
	return t, nil
}

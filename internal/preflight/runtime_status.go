package preflight

import (
	"context"
	"errors"

	"screenclip/internal/media"
	"screenclip/internal/services"
)

// CheckCaptureDevices asks devices for the display and the microphone and
// releases whatever was granted. Microphone failure is reported but only
// the display is required to record.
func CheckCaptureDevices(ctx context.Context, devices media.Devices, cfg CaptureProbe) []Result {
	display := Result{Name: "Display capture"}
	stream, err := devices.GetDisplayMedia(ctx, media.DisplayRequest{FrameRate: cfg.FrameRate, Audio: cfg.SystemAudio})
	switch {
	case err != nil:
		display.Detail = deviceDetail(err)
	default:
		display.Passed = true
		display.Detail = "granted"
		if cfg.SystemAudio && len(stream.AudioTracks()) == 0 {
			display.Detail = "granted without system audio"
		}
		stream.StopAll()
	}
	results := []Result{display}

	if !cfg.Microphone {
		return append(results, Result{Name: "Microphone", Passed: true, Detail: "Disabled"})
	}
	mic := Result{Name: "Microphone"}
	micStream, err := devices.GetUserMedia(ctx, media.UserMediaRequest{Audio: true})
	if err != nil {
		mic.Detail = deviceDetail(err) + " (recording continues without it)"
	} else {
		mic.Passed = true
		mic.Detail = "granted"
		micStream.StopAll()
	}
	return append(results, mic)
}

// CaptureProbe selects which sources CheckCaptureDevices requests.
type CaptureProbe struct {
	FrameRate   int
	SystemAudio bool
	Microphone  bool
}

func deviceDetail(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "probe canceled"
	case errors.Is(err, services.ErrCaptureDenied):
		return "denied: " + err.Error()
	default:
		return err.Error()
	}
}

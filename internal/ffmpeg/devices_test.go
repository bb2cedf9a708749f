package ffmpeg

import (
	"context"
	"errors"
	"strings"
	"testing"

	"screenclip/internal/media"
	"screenclip/internal/services"
)

func TestGetDisplayMediaGrantsDisplayAndSystemAudio(t *testing.T) {
	b := newTestBackend(t, noopScript, noopScript)
	stream, err := b.GetDisplayMedia(context.Background(), media.DisplayRequest{FrameRate: 24, Audio: true})
	if err != nil {
		t.Fatalf("GetDisplayMedia: %v", err)
	}
	if len(stream.VideoTracks()) != 1 || len(stream.AudioTracks()) != 1 {
		t.Fatalf("expected display video and system audio, got %d tracks", stream.Len())
	}
	video := stream.VideoTracks()[0].(*track)
	in := video.resolve()
	if !strings.Contains(strings.Join(in.args, " "), "-framerate 24 -draw_mouse 1 -i :99.0") {
		t.Fatalf("unexpected display input %v", in.args)
	}

	mic, err := b.GetUserMedia(context.Background(), media.UserMediaRequest{Audio: true})
	if err != nil {
		t.Fatalf("GetUserMedia: %v", err)
	}
	if len(mic.AudioTracks()) != 1 || !strings.Contains(mic.AudioTracks()[0].Label(), "microphone default") {
		t.Fatalf("unexpected microphone stream %v", mic.Tracks())
	}
}

func TestGetDisplayMediaDeniedWhenDisplayFails(t *testing.T) {
	b := newTestBackend(t, "#!/bin/sh\necho 'Cannot open display :99.0' >&2\nexit 1\n", noopScript)
	_, err := b.GetDisplayMedia(context.Background(), media.DisplayRequest{Audio: true})
	if !errors.Is(err, services.ErrCaptureDenied) {
		t.Fatalf("expected ErrCaptureDenied, got %v", err)
	}
	if !strings.Contains(err.Error(), "Cannot open display") {
		t.Fatalf("expected stderr detail, got %v", err)
	}
	if _, err := b.GetUserMedia(context.Background(), media.UserMediaRequest{Audio: true}); !errors.Is(err, services.ErrMicrophoneUnavailable) {
		t.Fatalf("expected ErrMicrophoneUnavailable, got %v", err)
	}
}

func TestGetDisplayMediaDropsUnavailableSystemAudio(t *testing.T) {
	script := "#!/bin/sh\ncase \"$*\" in\n*pulse*) exit 1 ;;\nesac\nexit 0\n"
	b := newTestBackend(t, script, noopScript)
	stream, err := b.GetDisplayMedia(context.Background(), media.DisplayRequest{Audio: true})
	if err != nil {
		t.Fatalf("GetDisplayMedia: %v", err)
	}
	if stream.Len() != 1 || len(stream.VideoTracks()) != 1 {
		t.Fatalf("expected display only, got %d tracks", stream.Len())
	}
}

func TestGetDisplayMediaHonorsCancellation(t *testing.T) {
	b := newTestBackend(t, "#!/bin/sh\nsleep 5\n", noopScript)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.GetDisplayMedia(ctx, media.DisplayRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

package ffmpeg

import (
	"testing"

	"screenclip/internal/config"
)

func TestFromConfigPlaybackSink(t *testing.T) {
	cfg := config.Default()
	cfg.Trim.PlaybackDevice = "speakers"
	if got := FromConfig(&cfg, nil).PlaybackSink; got != "speakers" {
		t.Fatalf("expected playback on speakers, got %q", got)
	}

	cfg.Trim.Playback = false
	if got := FromConfig(&cfg, nil).PlaybackSink; got != "" {
		t.Fatalf("disabled playback should leave no sink, got %q", got)
	}
}

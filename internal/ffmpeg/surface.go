package ffmpeg

import (
	"errors"
	"fmt"
	"sync"

	"screenclip/internal/logging"
	"screenclip/internal/media"
)

// NewSurface returns a surface that renders the player's video scaled to
// width x height.
func (b *Backend) NewSurface(source media.Player, width, height int) (media.Surface, error) {
	p, ok := source.(*player)
	if !ok {
		return nil, errors.New("surface source is not an ffmpeg player")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	return &surface{player: p, width: width, height: height}, nil
}

type surface struct {
	player *player
	width  int
	height int

	mu     sync.Mutex
	closed bool
	frames int
	last   float64
}

var (
	_ media.Surface = (*surface)(nil)
	_ media.Canvas  = (*surface)(nil)
)

func (s *surface) Size() (int, int) { return s.width, s.height }

func (s *surface) Context2D() (media.Canvas, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("surface closed")
	}
	return s, nil
}

// DrawFrame records the position being presented. Pixels are produced by the
// replay input when recording, so there is nothing to rasterize here.
func (s *surface) DrawFrame(position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("surface closed")
	}
	s.frames++
	s.last = position
	return nil
}

// CaptureStream exposes the surface as a video track of the replay file.
func (s *surface) CaptureStream(frameRate int) (*media.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("surface closed")
	}
	video := newTrack(media.KindVideo, "replay surface", s.player.replayInput)
	video.filter = fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		s.width, s.height, s.width, s.height)
	video.frameRate = frameRate
	return media.NewStream(video), nil
}

func (s *surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	frames, last := s.frames, s.last
	s.mu.Unlock()
	s.player.b.logger.Debug("surface closed",
		logging.Int("frames_drawn", frames),
		logging.Float64("last_position", last),
	)
	return nil
}

// NewAudioGraph routes the player's audio to a capturable tap and, when a
// playback sink is configured, to the speakers while the tap is recorded.
func (b *Backend) NewAudioGraph(source media.Player) (media.AudioGraph, error) {
	p, ok := source.(*player)
	if !ok {
		return nil, errors.New("audio graph source is not an ffmpeg player")
	}
	return &audioGraph{player: p}, nil
}

type audioGraph struct {
	player *player

	mu     sync.Mutex
	closed bool
}

var _ media.AudioGraph = (*audioGraph)(nil)

// Tap returns the replay audio track, or an empty stream when the source
// has no audio. The recorder that consumes the tap also plays it on the
// playback sink, so listening stops when that recorder stops.
func (g *audioGraph) Tap() (*media.Stream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, errors.New("audio graph closed")
	}
	if !g.player.hasAudio {
		return media.NewStream(), nil
	}
	audio := newTrack(media.KindAudio, "replay audio", g.player.replayInput)
	audio.playback = g.player.b.cfg.PlaybackSink != ""
	return media.NewStream(audio), nil
}

func (g *audioGraph) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return nil
}

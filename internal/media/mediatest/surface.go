package mediatest

import (
	"errors"
	"sync"

	"screenclip/internal/media"
)

// SurfaceFactory builds Surfaces. NilCanvas makes Context2D return no canvas.
type SurfaceFactory struct {
	Log        *EventLog
	Err        error
	ContextErr error
	CaptureErr error
	NilCanvas  bool

	mu       sync.Mutex
	surfaces []*Surface
}

func (f *SurfaceFactory) NewSurface(_ media.Player, width, height int) (media.Surface, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	s := &Surface{width: width, height: height, factory: f, log: f.Log}
	f.mu.Lock()
	f.surfaces = append(f.surfaces, s)
	f.mu.Unlock()
	f.Log.Add("surface.new")
	return s, nil
}

// Last returns the most recently built surface or nil.
func (f *SurfaceFactory) Last() *Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.surfaces) == 0 {
		return nil
	}
	return f.surfaces[len(f.surfaces)-1]
}

// Surface records every drawn frame position.
type Surface struct {
	width   int
	height  int
	factory *SurfaceFactory
	log     *EventLog
	Video   *Track

	mu     sync.Mutex
	draws  []float64
	fps    int
	closed bool
}

func (s *Surface) Size() (int, int) { return s.width, s.height }

func (s *Surface) Context2D() (media.Canvas, error) {
	if s.factory.ContextErr != nil {
		return nil, s.factory.ContextErr
	}
	if s.factory.NilCanvas {
		return nil, nil
	}
	return canvas{s}, nil
}

func (s *Surface) CaptureStream(frameRate int) (*media.Stream, error) {
	if s.factory.CaptureErr != nil {
		return nil, s.factory.CaptureErr
	}
	s.mu.Lock()
	s.fps = frameRate
	s.Video = NewTrack("surface", media.KindVideo, s.log)
	track := s.Video
	s.mu.Unlock()
	return media.NewStream(track), nil
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("surface already closed")
	}
	s.closed = true
	s.log.Add("surface.close")
	return nil
}

// Draws returns the positions passed to DrawFrame, in order.
func (s *Surface) Draws() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.draws...)
}

// FrameRate returns the capture rate requested through CaptureStream.
func (s *Surface) FrameRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// Closed reports whether Close was called.
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type canvas struct{ s *Surface }

func (c canvas) DrawFrame(position float64) error {
	c.s.mu.Lock()
	c.s.draws = append(c.s.draws, position)
	c.s.mu.Unlock()
	return nil
}

// AudioGraphFactory builds AudioGraphs. Silent graphs expose no audio track.
type AudioGraphFactory struct {
	Log    *EventLog
	Err    error
	TapErr error
	Silent bool

	mu     sync.Mutex
	graphs []*AudioGraph
}

func (f *AudioGraphFactory) NewAudioGraph(media.Player) (media.AudioGraph, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	g := &AudioGraph{factory: f, log: f.Log}
	f.mu.Lock()
	f.graphs = append(f.graphs, g)
	f.mu.Unlock()
	f.Log.Add("audio.new")
	return g, nil
}

// Last returns the most recently built graph or nil.
func (f *AudioGraphFactory) Last() *AudioGraph {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.graphs) == 0 {
		return nil
	}
	return f.graphs[len(f.graphs)-1]
}

// AudioGraph counts Close calls.
type AudioGraph struct {
	factory *AudioGraphFactory
	log     *EventLog
	Track   *Track

	mu     sync.Mutex
	closes int
}

func (g *AudioGraph) Tap() (*media.Stream, error) {
	if g.factory.TapErr != nil {
		return nil, g.factory.TapErr
	}
	if g.factory.Silent {
		return media.NewStream(), nil
	}
	g.mu.Lock()
	g.Track = NewTrack("tap", media.KindAudio, g.log)
	track := g.Track
	g.mu.Unlock()
	return media.NewStream(track), nil
}

func (g *AudioGraph) Close() error {
	g.mu.Lock()
	g.closes++
	g.mu.Unlock()
	g.log.Add("audio.close")
	return nil
}

// Closes reports how many times Close was called.
func (g *AudioGraph) Closes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closes
}

package media

import "sync"

// Kind distinguishes video tracks from audio tracks.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Track is one live media source. Stop is not assumed to be idempotent, so
// callers go through Stream.StopAll rather than stopping tracks directly.
type Track interface {
	ID() string
	Kind() Kind
	Label() string
	Stop()
	// OnEnded registers a callback invoked when the track ends for reasons
	// outside the owner's control.
	OnEnded(fn func())
}

// Stream is an ordered set of live tracks: display video first, then display
// audio, then microphone audio.
type Stream struct {
	mu      sync.Mutex
	tracks  []Track
	stopped []bool
}

// NewStream groups tracks in the order given.
func NewStream(tracks ...Track) *Stream {
	s := &Stream{}
	for _, t := range tracks {
		s.AddTrack(t)
	}
	return s
}

// AddTrack appends a track. Nil tracks are ignored.
func (s *Stream) AddTrack(t Track) {
	if t == nil {
		return
	}
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.stopped = append(s.stopped, false)
	s.mu.Unlock()
}

// Tracks returns a snapshot of every track in order.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// VideoTracks returns the video tracks in order.
func (s *Stream) VideoTracks() []Track { return s.byKind(KindVideo) }

// AudioTracks returns the audio tracks in order.
func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }

func (s *Stream) byKind(kind Kind) []Track {
	var out []Track
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// Len reports the number of tracks held.
func (s *Stream) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// StopAll stops every track that has not been stopped through this stream yet.
// It is safe to call repeatedly and concurrently.
func (s *Stream) StopAll() {
	if s == nil {
		return
	}
	s.mu.Lock()
	var pending []Track
	for i, t := range s.tracks {
		if s.stopped[i] {
			continue
		}
		s.stopped[i] = true
		pending = append(pending, t)
	}
	s.mu.Unlock()
	for _, t := range pending {
		t.Stop()
	}
}

// Transfer moves every track and its stopped-state into a new Stream and
// leaves the receiver empty. Ownership moves with the returned value.
func (s *Stream) Transfer() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := &Stream{tracks: s.tracks, stopped: s.stopped}
	s.tracks = nil
	s.stopped = nil
	return next
}

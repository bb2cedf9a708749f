package mediatest

import (
	"sync"

	"screenclip/internal/media"
)

// Track is a fake live track that counts Stop calls.
type Track struct {
	id    string
	kind  media.Kind
	log   *EventLog
	mu    sync.Mutex
	stops int
	ended []func()
}

// NewTrack returns a track that logs "track.stop:<id>" on Stop.
func NewTrack(id string, kind media.Kind, log *EventLog) *Track {
	return &Track{id: id, kind: kind, log: log}
}

func (t *Track) ID() string       { return t.id }
func (t *Track) Kind() media.Kind { return t.kind }
func (t *Track) Label() string    { return "fake " + string(t.kind) + " " + t.id }

func (t *Track) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
	t.log.Add("track.stop:" + t.id)
}

func (t *Track) OnEnded(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.ended = append(t.ended, fn)
	t.mu.Unlock()
}

// End simulates the track ending outside the owner's control.
func (t *Track) End() {
	t.mu.Lock()
	handlers := append([]func(){}, t.ended...)
	t.mu.Unlock()
	t.log.Add("track.ended:" + t.id)
	for _, fn := range handlers {
		fn()
	}
}

// Stops reports how many times Stop was called.
func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

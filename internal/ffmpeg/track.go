package ffmpeg

import (
	"sync"

	"github.com/google/uuid"

	"screenclip/internal/media"
)

// input is one ffmpeg input: every option that precedes the file plus the
// "-i file" pair itself. Tracks with the same key share one input.
type input struct {
	key  string
	args []string
}

// track describes where its media comes from. It resolves to an input only
// when a recorder starts, so replay tracks pick up the player's position.
type track struct {
	id    string
	kind  media.Kind
	label string
	// resolve builds the input at recorder start.
	resolve func() input
	// filter is applied to this track's stream inside the filter graph,
	// for example a scale for replay video.
	filter string
	// frameRate sets the output rate for a video track when positive.
	frameRate int
	// live marks a device capture. Its source going away ends the take
	// normally rather than failing the recorder.
	live bool
	// playback also sends an audio track to the backend's playback sink.
	playback bool

	mu      sync.Mutex
	stopped bool
	ended   bool
	onEnded []func()
}

var _ media.Track = (*track)(nil)

func newTrack(kind media.Kind, label string, resolve func() input) *track {
	return &track{id: uuid.NewString(), kind: kind, label: label, resolve: resolve}
}

func staticInput(key string, args ...string) func() input {
	in := input{key: key, args: args}
	return func() input { return in }
}

func (t *track) ID() string       { return t.id }
func (t *track) Kind() media.Kind { return t.kind }
func (t *track) Label() string    { return t.label }

// Stop marks the track as released by its owner. It never fires OnEnded.
func (t *track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *track) OnEnded(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// end reports that the source went away without the owner asking. It fires
// the OnEnded callbacks at most once and not after Stop.
func (t *track) end() {
	t.mu.Lock()
	if t.stopped || t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	callbacks := append([]func(){}, t.onEnded...)
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

func (t *track) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

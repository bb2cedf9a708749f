package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/media/ffprobe"
)

// Load writes c to a temp file under the work directory and reads its
// metadata. OnLoadedMetadata fires asynchronously once Load has returned a
// usable player.
func (b *Backend) Load(ctx context.Context, c *media.Container, events media.PlayerEvents) (media.Player, error) {
	if c.Empty() {
		return nil, errors.New("load: empty container")
	}
	if err := os.MkdirAll(b.cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("load: work dir: %w", err)
	}
	file, err := os.CreateTemp(b.cfg.WorkDir, "replay-*.webm")
	if err != nil {
		return nil, fmt.Errorf("load: temp file: %w", err)
	}
	path := file.Name()
	if _, err := file.ReadFrom(c.Reader()); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("load: write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("load: close temp file: %w", err)
	}

	result, err := ffprobe.Inspect(ctx, b.cfg.FFprobeBinary, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, wrapTool("trimming", "inspect replay", err)
	}
	duration := result.Duration()
	if !media.ValidDuration(duration) {
		duration, err = ffprobe.PacketDuration(ctx, b.cfg.FFprobeBinary, path)
		if err != nil {
			b.logger.Debug("packet duration unavailable", logging.Error(err))
			duration = math.NaN()
		}
	}
	width, height := result.VideoSize()

	p := &player{
		b:        b,
		path:     path,
		events:   events,
		duration: duration,
		width:    width,
		height:   height,
		hasAudio: result.AudioStreamCount() > 0,
	}
	b.logger.Debug("replay loaded",
		logging.Int("bytes", c.Size()),
		logging.Float64("duration_seconds", duration),
		logging.Int("width", width),
		logging.Int("height", height),
	)
	p.async(events.OnLoadedMetadata)
	return p, nil
}

// player keeps a virtual playback clock over a temp file. The clock is
// advanced by wall time while playing; the file itself is only decoded by
// the recorder's replay input.
type player struct {
	b        *Backend
	path     string
	events   media.PlayerEvents
	duration float64
	width    int
	height   int
	hasAudio bool

	mu        sync.Mutex
	base      float64
	startedAt time.Time
	playing   bool
	closed    bool
	halt      chan struct{}
	wg        sync.WaitGroup
}

var _ media.Player = (*player)(nil)

func (p *player) Duration() float64 { return p.duration }

func (p *player) VideoSize() (int, int) { return p.width, p.height }

func (p *player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *player) positionLocked() float64 {
	pos := p.base
	if p.playing {
		pos += time.Since(p.startedAt).Seconds()
	}
	if media.ValidDuration(p.duration) && pos > p.duration {
		pos = p.duration
	}
	return pos
}

// Seek moves the clock and reports completion through OnSeeked.
func (p *player) Seek(position float64) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if math.IsNaN(position) || position < 0 {
		position = 0
	}
	if media.ValidDuration(p.duration) && position > p.duration {
		position = p.duration
	}
	p.base = position
	p.startedAt = time.Now()
	p.mu.Unlock()
	p.async(p.events.OnSeeked)
}

func (p *player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("play: player closed")
	}
	if p.playing {
		return nil
	}
	p.playing = true
	p.startedAt = time.Now()
	p.halt = make(chan struct{})
	p.wg.Add(1)
	go p.clock(p.halt)
	return nil
}

func (p *player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked()
}

func (p *player) pauseLocked() {
	if !p.playing {
		return
	}
	p.base = p.positionLocked()
	p.playing = false
	close(p.halt)
}

// Close stops the clock, waits for pending callbacks, and removes the temp file.
func (p *player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.pauseLocked()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove replay file: %w", err)
	}
	return nil
}

// clock emits time updates until paused, closed, or the end is reached.
func (p *player) clock(halt <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.b.cfg.TimeUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-halt:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if !p.playing {
			p.mu.Unlock()
			return
		}
		pos := p.positionLocked()
		ended := media.ValidDuration(p.duration) && pos >= p.duration
		if ended {
			p.pauseLocked()
		}
		p.mu.Unlock()

		if p.events.OnTimeUpdate != nil {
			p.events.OnTimeUpdate(pos)
		}
		if ended {
			if p.events.OnEnded != nil {
				p.events.OnEnded()
			}
			return
		}
	}
}

func (p *player) async(fn func()) {
	if fn == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// replayInput reads the file in real time from the current clock position.
func (p *player) replayInput() input {
	start := strconv.FormatFloat(p.CurrentTime(), 'f', 3, 64)
	return input{key: "replay:" + p.path, args: []string{"-re", "-ss", start, "-i", p.path}}
}

package mediatest

import (
	"context"
	"math"
	"sync"
	"time"

	"screenclip/internal/media"
)

// PlayerFactory loads scripted Players.
//
// Durations is consumed one value per Duration call and the last value
// repeats. With AutoSeek, Seek completes on its own goroutine. With AutoPlay,
// Play emits time updates every Step seconds of media time until the source
// duration is reached, then OnEnded.
type PlayerFactory struct {
	Log       *EventLog
	Durations []float64
	Width     int
	Height    int
	LoadErr   error
	AutoSeek  bool
	AutoPlay  bool
	Step      float64
	// NoMetadata suppresses OnLoadedMetadata.
	NoMetadata bool

	mu      sync.Mutex
	players []*Player
}

func (f *PlayerFactory) Load(_ context.Context, c *media.Container, events media.PlayerEvents) (media.Player, error) {
	if f.LoadErr != nil {
		return nil, f.LoadErr
	}
	p := &Player{
		Source:    c,
		events:    events,
		log:       f.Log,
		durations: append([]float64(nil), f.Durations...),
		width:     f.Width,
		height:    f.Height,
		autoSeek:  f.AutoSeek,
		autoPlay:  f.AutoPlay,
		step:      f.Step,
		quit:      make(chan struct{}),
	}
	if p.step <= 0 {
		p.step = 0.25
	}
	f.mu.Lock()
	f.players = append(f.players, p)
	f.mu.Unlock()
	f.Log.Add("player.load")
	if !f.NoMetadata {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.deliver(func() {
				if events.OnLoadedMetadata != nil {
					events.OnLoadedMetadata()
				}
			})
		}()
	}
	return p, nil
}

// Last returns the most recently loaded player or nil.
func (f *PlayerFactory) Last() *Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.players) == 0 {
		return nil
	}
	return f.players[len(f.players)-1]
}

// Player is a scripted decode context.
type Player struct {
	Source *media.Container

	events    media.PlayerEvents
	log       *EventLog
	durations []float64
	width     int
	height    int
	autoSeek  bool
	autoPlay  bool
	step      float64

	deliverMu sync.Mutex
	mu        sync.Mutex
	reads     int
	position  float64
	playing   bool
	closed    bool
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (p *Player) deliver(fn func()) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	fn()
}

func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if len(p.durations) == 0 {
		return math.NaN()
	}
	idx := min(p.reads-1, len(p.durations)-1)
	return p.durations[idx]
}

// DurationReads reports how many times Duration was called.
func (p *Player) DurationReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

func (p *Player) sourceDuration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.durations) == 0 {
		return math.Inf(1)
	}
	return p.durations[len(p.durations)-1]
}

func (p *Player) VideoSize() (int, int) { return p.width, p.height }

func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Player) Seek(position float64) {
	p.mu.Lock()
	p.position = position
	start := p.autoSeek && !p.closed
	if start {
		p.wg.Add(1)
	}
	p.mu.Unlock()
	p.log.Add("player.seek")
	if !start {
		return
	}
	go func() {
		defer p.wg.Done()
		p.CompleteSeek()
	}()
}

// CompleteSeek delivers OnSeeked.
func (p *Player) CompleteSeek() {
	p.deliver(func() {
		p.log.Add("player.seeked")
		if p.events.OnSeeked != nil {
			p.events.OnSeeked()
		}
	})
}

// TimeUpdate delivers OnTimeUpdate at position and moves the playhead there.
func (p *Player) TimeUpdate(position float64) {
	p.mu.Lock()
	p.position = position
	p.mu.Unlock()
	p.deliver(func() {
		if p.events.OnTimeUpdate != nil {
			p.events.OnTimeUpdate(position)
		}
	})
}

// Fail delivers OnError.
func (p *Player) Fail(err error) {
	p.deliver(func() {
		if p.events.OnError != nil {
			p.events.OnError(err)
		}
	})
}

func (p *Player) Play() error {
	p.mu.Lock()
	start := !p.playing && p.autoPlay && !p.closed
	p.playing = true
	if start {
		p.wg.Add(1)
	}
	p.mu.Unlock()
	p.log.Add("player.play")
	if start {
		go p.run()
	}
	return nil
}

func (p *Player) run() {
	defer p.wg.Done()
	end := p.sourceDuration()
	for {
		select {
		case <-p.quit:
			return
		default:
		}
		p.mu.Lock()
		if !p.playing {
			p.mu.Unlock()
			return
		}
		next := p.position + p.step
		p.mu.Unlock()
		if next >= end {
			p.TimeUpdate(end)
			p.deliver(func() {
				if p.events.OnEnded != nil {
					p.events.OnEnded()
				}
			})
			return
		}
		p.TimeUpdate(next)
		time.Sleep(time.Millisecond)
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	p.log.Add("player.pause")
}

// Close stops auto playback and joins every goroutine the player started.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.playing = false
		p.mu.Unlock()
		close(p.quit)
		p.log.Add("player.close")
	})
	p.wg.Wait()
	return nil
}

// Closed reports whether Close was called.
func (p *Player) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

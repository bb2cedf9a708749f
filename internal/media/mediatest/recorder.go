package mediatest

import (
	"errors"
	"sync"

	"screenclip/internal/media"
)

// RecorderFactory hands out Recorders and remembers them.
type RecorderFactory struct {
	Log *EventLog
	Err error
	// Flush is delivered through OnData when a recorder is stopped.
	Flush []byte
	// HoldStop keeps stopped recorders in their flush phase until Finish.
	HoldStop bool
	StartErr error

	mu        sync.Mutex
	recorders []*Recorder
}

func (f *RecorderFactory) NewRecorder(stream *media.Stream, opts media.RecorderOptions, events media.RecorderEvents) (media.Recorder, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	rec := &Recorder{
		Stream:   stream,
		Options:  opts,
		events:   events,
		log:      f.Log,
		flush:    f.Flush,
		hold:     f.HoldStop,
		startErr: f.StartErr,
		finished: make(chan struct{}),
	}
	f.mu.Lock()
	f.recorders = append(f.recorders, rec)
	f.mu.Unlock()
	f.Log.Add("recorder.new")
	return rec, nil
}

// Recorders returns every recorder built so far.
func (f *RecorderFactory) Recorders() []*Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Recorder(nil), f.recorders...)
}

// Last returns the most recent recorder or nil.
func (f *RecorderFactory) Last() *Recorder {
	recs := f.Recorders()
	if len(recs) == 0 {
		return nil
	}
	return recs[len(recs)-1]
}

// Recorder is a fake chunked recorder driven by the test.
type Recorder struct {
	Stream  *media.Stream
	Options media.RecorderOptions

	events   media.RecorderEvents
	log      *EventLog
	flush    []byte
	hold     bool
	startErr error

	deliver  sync.Mutex
	mu       sync.Mutex
	state    string
	stops    int
	stopOnce sync.Once
	finished chan struct{}
	wg       sync.WaitGroup
}

var errNotRecording = errors.New("recorder is not recording")

func (r *Recorder) Start() error {
	if r.startErr != nil {
		return r.startErr
	}
	r.mu.Lock()
	r.state = "recording"
	r.mu.Unlock()
	r.log.Add("recorder.start")
	return nil
}

func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != "recording" {
		return errNotRecording
	}
	r.state = "paused"
	r.log.Add("recorder.pause")
	return nil
}

func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != "paused" {
		return errNotRecording
	}
	r.state = "recording"
	r.log.Add("recorder.resume")
	return nil
}

// Stop flushes the configured final chunk then fires OnStop on a separate
// goroutine, unless HoldStop was set.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	r.stops++
	first := r.state != "inactive"
	r.state = "inactive"
	r.mu.Unlock()
	r.log.Add("recorder.stop")
	if !first || r.hold {
		return nil
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Finish()
	}()
	return nil
}

// Finish delivers the flush chunk and OnStop exactly once.
func (r *Recorder) Finish() {
	r.stopOnce.Do(func() {
		if len(r.flush) > 0 {
			r.Emit(r.flush)
		}
		r.deliver.Lock()
		if r.events.OnStop != nil {
			r.events.OnStop()
		}
		r.deliver.Unlock()
		r.log.Add("recorder.stopped")
		close(r.finished)
	})
}

// Emit delivers one data callback.
func (r *Recorder) Emit(data []byte) {
	r.deliver.Lock()
	defer r.deliver.Unlock()
	if r.events.OnData != nil {
		r.events.OnData(data)
	}
}

// Fail delivers a fatal error followed by OnStop.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	r.state = "inactive"
	r.mu.Unlock()
	r.deliver.Lock()
	if r.events.OnError != nil {
		r.events.OnError(err)
	}
	r.deliver.Unlock()
	r.Finish()
}

// Finished closes after OnStop has been delivered.
func (r *Recorder) Finished() <-chan struct{} { return r.finished }

// Wait joins any goroutine started by Stop.
func (r *Recorder) Wait() { r.wg.Wait() }

// State returns "", "recording", "paused", or "inactive".
func (r *Recorder) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StopCalls reports how many times Stop was called.
func (r *Recorder) StopCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

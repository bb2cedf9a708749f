package recording

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/services"
)

// DefaultTimeslice is the live capture chunk interval.
const DefaultTimeslice = time.Second

// Options configures a Session.
type Options struct {
	Recorders media.RecorderFactory
	MIMEType  string
	Timeslice time.Duration
	Logger    *slog.Logger
}

// Session records one take. Public methods are safe for concurrent use;
// backend callbacks are serialized behind the session mutex.
type Session struct {
	recorders media.RecorderFactory
	mimeType  string
	timeslice time.Duration
	logger    *slog.Logger

	// opMu serializes Start, Pause, Resume, and Stop. mu guards the fields
	// below and is never held while calling into the recorder or tracks.
	opMu sync.Mutex
	mu   sync.Mutex

	state       State
	stream      *media.Stream
	recorder    media.Recorder
	chunks      []media.Chunk
	timer       *elapsedTimer
	err         error
	container   *media.Container
	autoStopped bool
	hooks       []func()
	releaseCtx  func() bool

	elapsed atomic.Int64
	done    chan struct{}
}

// New builds an idle session.
func New(opts Options) *Session {
	mime := opts.MIMEType
	if mime == "" {
		mime = media.RecorderMIME
	}
	timeslice := opts.Timeslice
	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}
	return &Session{
		recorders: opts.Recorders,
		mimeType:  mime,
		timeslice: timeslice,
		logger:    logging.NewComponentLogger(opts.Logger, "recording"),
		done:      make(chan struct{}),
	}
}

// Start takes ownership of stream and begins recording. Cancelling ctx stops
// the session as if Stop were called.
func (s *Session) Start(ctx context.Context, stream *media.Stream) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "capturing", "start recording", fmt.Sprintf("session is %s", state), nil)
	}
	s.mu.Unlock()

	if stream == nil || len(stream.VideoTracks()) == 0 {
		return services.Wrap(services.ErrValidation, "capturing", "start recording", "stream has no video track", nil)
	}
	owned := stream.Transfer()
	s.logger = logging.WithContext(ctx, s.logger)

	recorder, err := s.recorders.NewRecorder(owned, media.RecorderOptions{
		MIMEType:  s.mimeType,
		Timeslice: s.timeslice,
	}, media.RecorderEvents{
		OnData:  s.handleData,
		OnStop:  s.handleStop,
		OnError: s.handleError,
	})
	if err != nil {
		owned.StopAll()
		return services.Wrap(services.ErrExternalTool, "capturing", "create recorder", "recorder unavailable", err)
	}

	s.mu.Lock()
	s.stream = owned
	s.recorder = recorder
	s.state = StateRecording
	s.timer = startElapsedTimer(&s.elapsed)
	s.mu.Unlock()

	if err := recorder.Start(); err != nil {
		s.finalize(err)
		return services.Wrap(services.ErrExternalTool, "capturing", "start recorder", "recorder failed to start", err)
	}

	owned.VideoTracks()[0].OnEnded(s.handleTrackEnded)
	if ctx != nil && ctx.Done() != nil {
		release := context.AfterFunc(ctx, func() { s.Stop() })
		s.mu.Lock()
		s.releaseCtx = release
		s.mu.Unlock()
	}

	s.logger.Info("recording started",
		logging.Int("tracks", owned.Len()),
		logging.Duration("timeslice", s.timeslice),
		logging.String("mime_type", s.mimeType),
	)
	return nil
}

// Pause suspends recording. It reports false, and does nothing, unless the
// session is recording.
func (s *Session) Pause() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return false
	}
	s.state = StatePaused
	s.timer.stop()
	s.timer = nil
	recorder := s.recorder
	s.mu.Unlock()

	if err := recorder.Pause(); err != nil {
		logging.WarnWithContext(s.logger, "recorder pause failed", "recorder_pause_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "capture may continue while the clock is paused"),
		)
	}
	s.logger.Info("recording paused", logging.Int64("elapsed_seconds", s.elapsed.Load()))
	return true
}

// Resume continues a paused session. It reports false unless the session is paused.
func (s *Session) Resume() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return false
	}
	s.state = StateRecording
	s.timer = startElapsedTimer(&s.elapsed)
	recorder := s.recorder
	s.mu.Unlock()

	if err := recorder.Resume(); err != nil {
		logging.WarnWithContext(s.logger, "recorder resume failed", "recorder_resume_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "capture may stay paused"),
		)
	}
	s.logger.Info("recording resumed")
	return true
}

// Stop requests the final flush. It reports false unless the session was
// recording or paused. Use Wait or Done for the finalized Container.
func (s *Session) Stop() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return false
	}
	s.state = StateStopping
	s.timer.stop()
	s.timer = nil
	recorder := s.recorder
	s.mu.Unlock()

	s.logger.Info("recording stopping", logging.Int64("elapsed_seconds", s.elapsed.Load()))
	if err := recorder.Stop(); err != nil {
		s.finalize(err)
	}
	return true
}

// OnAutoStop registers fn to run when the display track ends on its own and
// the session stops because of it.
func (s *Session) OnAutoStop(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// handleTrackEnded runs on the backend's event goroutine. The session is
// marked auto-stopped and moved to stopping before returning, so an OnStop
// delivered right after the track ends still finalizes an auto-stopped take.
func (s *Session) handleTrackEnded() {
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	s.autoStopped = true
	s.timer.stop()
	s.timer = nil
	recorder := s.recorder
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	s.logger.Info("display track ended, recording auto-stopped",
		logging.Int64("elapsed_seconds", s.elapsed.Load()),
	)
	for _, fn := range hooks {
		fn()
	}
	if err := recorder.Stop(); err != nil {
		s.finalize(err)
	}
}

func (s *Session) handleData(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinalized {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.chunks = append(s.chunks, media.Chunk{Seq: len(s.chunks), Data: cp})
}

func (s *Session) handleError(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	logging.ErrorWithContext(s.logger, "recorder reported an error", "recorder_error",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run 'screenclip doctor' to check ffmpeg and capture devices"),
	)
}

func (s *Session) handleStop() {
	s.finalize(nil)
}

// finalize builds the Container once, stops every owned track, then closes done.
func (s *Session) finalize(cause error) {
	s.mu.Lock()
	if s.state == StateFinalized {
		s.mu.Unlock()
		return
	}
	s.state = StateFinalized
	s.timer.stop()
	s.timer = nil
	if s.err == nil && cause != nil {
		s.err = cause
	}
	s.container = media.Concat(media.ContentTypeWebM, s.chunks)
	stream := s.stream
	release := s.releaseCtx
	chunks := len(s.chunks)
	size := s.container.Size()
	s.mu.Unlock()

	if release != nil {
		release()
	}
	stream.StopAll()
	s.logger.Info("recording finalized",
		logging.Int("chunks", chunks),
		logging.Int("bytes", size),
		logging.Int64("elapsed_seconds", s.elapsed.Load()),
	)
	close(s.done)
}

// Done is closed once the session is finalized.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session is finalized and returns its Container. A
// recorder error is returned alongside the Container built from the chunks
// received before it.
func (s *Session) Wait(ctx context.Context) (*media.Container, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.container, s.err
}

// Container returns the finalized Container, or nil before finalize.
func (s *Session) Container() *media.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.container
}

// Err returns the recorder error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns whole seconds spent recording, excluding pauses.
func (s *Session) Elapsed() int {
	return int(s.elapsed.Load())
}

// AutoStopped reports whether the session ended because the display track ended.
func (s *Session) AutoStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoStopped
}

// Chunks returns the number of non-empty chunks received so far.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

package trim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/services"
)

const (
	DefaultFrameRate          = 30
	DefaultTimeslice          = 100 * time.Millisecond
	DefaultDurationRetryDelay = 500 * time.Millisecond
	DefaultWidth              = 1920
	DefaultHeight             = 1080
)

// Passthrough reasons reported in Result.Reason.
const (
	ReasonSkipped      = "skipped"
	ReasonFullWindow   = "full window"
	ReasonEmptySource  = "empty source"
	ReasonLoadFailed   = "source could not be loaded"
	ReasonNoDuration   = "duration unavailable"
	ReasonNoSurface    = "render surface unavailable"
	ReasonNoCanvas     = "drawing context unavailable"
	ReasonNoAudioGraph = "audio graph unavailable"
	ReasonRecorder     = "recorder failed"
	ReasonPlayback     = "playback failed"
	ReasonEmptyOutput  = "re-encode produced no data"
	ReasonCanceled     = "canceled"
)

// Options wires the backend ports and timing.
type Options struct {
	Players            media.PlayerFactory
	Surfaces           media.SurfaceFactory
	AudioGraphs        media.AudioGraphFactory
	Recorders          media.RecorderFactory
	FrameRate          int
	Timeslice          time.Duration
	DurationRetryDelay time.Duration
	DefaultWidth       int
	DefaultHeight      int
	// SkipFullWindow passes the source through when the window covers it entirely.
	SkipFullWindow bool
	Logger         *slog.Logger
}

// Result is the outcome of Trim. Container is never nil for a non-nil source.
type Result struct {
	Container *media.Container
	// Applied is true only when Container is a new re-encoded artifact.
	Applied bool
	Reason  string
	// Window is the clamped window that was replayed, when the duration was known.
	Window         media.TrimWindow
	SourceDuration float64
}

// Reencoder replays containers through the media backend.
type Reencoder struct {
	opts   Options
	logger *slog.Logger
}

// New applies defaults to opts.
func New(opts Options) *Reencoder {
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	if opts.DurationRetryDelay <= 0 {
		opts.DurationRetryDelay = DefaultDurationRetryDelay
	}
	if opts.DefaultWidth <= 0 || opts.DefaultHeight <= 0 {
		opts.DefaultWidth, opts.DefaultHeight = DefaultWidth, DefaultHeight
	}
	return &Reencoder{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "trim")}
}

// Skip returns the source untouched, exactly as a failed trim would.
func (r *Reencoder) Skip(src *media.Container) Result {
	return Result{Container: src, Reason: ReasonSkipped}
}

// Duration loads src and reports its duration using the same one-shot retry
// as Trim.
func (r *Reencoder) Duration(ctx context.Context, src *media.Container) (float64, error) {
	if src.Empty() {
		return 0, services.Wrap(services.ErrTrimUnavailable, "trimming", "probe duration", ReasonEmptySource, nil)
	}
	j := newJob(r, logging.WithContext(ctx, r.logger))
	defer j.release(ctx)
	if reason, err := j.load(ctx, src); reason != "" {
		return 0, services.Wrap(services.ErrTrimUnavailable, "trimming", "probe duration", reason, err)
	}
	duration, reason := j.resolveDuration(ctx)
	if reason != "" {
		return 0, services.Wrap(services.ErrTrimUnavailable, "trimming", "probe duration", reason, j.failure())
	}
	return duration, nil
}

// Trim replays src between window.Start and window.End and records the
// result. It never fails: every problem degrades to a passthrough Result,
// after all backend resources have been released.
func (r *Reencoder) Trim(ctx context.Context, src *media.Container, window media.TrimWindow) Result {
	logger := logging.WithContext(ctx, r.logger)
	if src.Empty() {
		return r.passthrough(logger, src, Result{Reason: ReasonEmptySource}, nil)
	}

	j := newJob(r, logger)
	res, err := j.run(ctx, src, window)
	j.release(ctx)

	if !res.Applied {
		return r.passthrough(logger, src, res, err)
	}
	logger.Info("trim applied",
		logging.String("window", res.Window.String()),
		logging.Float64("source_seconds", res.SourceDuration),
		logging.Int("source_bytes", src.Size()),
		logging.Int("output_bytes", res.Container.Size()),
	)
	return res
}

func (r *Reencoder) passthrough(logger *slog.Logger, src *media.Container, res Result, err error) Result {
	res.Container = src
	res.Applied = false
	attrs := []logging.Attr{
		logging.String("reason", res.Reason),
		logging.String(logging.FieldImpact, "original recording kept"),
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	switch res.Reason {
	case ReasonFullWindow, ReasonCanceled:
		logger.Info("trim not applied", logging.Args(attrs...)...)
	default:
		logging.WarnWithContext(logger, "trim unavailable, passing recording through", "trim_passthrough", attrs...)
	}
	return res
}

// job holds one replay. Backend callbacks are serialized behind mu, and mu is
// never held while calling into the backend.
type job struct {
	r      *Reencoder
	logger *slog.Logger

	mu        sync.Mutex
	gate      seekGate
	window    media.TrimWindow
	recording bool
	ending    bool
	chunks    []media.Chunk
	err       error
	reason    string

	player   media.Player
	surface  media.Surface
	canvas   media.Canvas
	graph    media.AudioGraph
	out      *media.Stream
	recorder media.Recorder

	metadata     chan struct{}
	metadataOnce sync.Once
	failed       chan struct{}
	failOnce     sync.Once
	stopped      chan struct{}
	stopOnce     sync.Once
	graphOnce    sync.Once
	stopRequest  sync.Once
}

func newJob(r *Reencoder, logger *slog.Logger) *job {
	return &job{
		r:        r,
		logger:   logger,
		metadata: make(chan struct{}),
		failed:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (j *job) run(ctx context.Context, src *media.Container, requested media.TrimWindow) (Result, error) {
	if reason, err := j.load(ctx, src); reason != "" {
		return Result{Reason: reason}, err
	}
	duration, reason := j.resolveDuration(ctx)
	if reason != "" {
		return Result{Reason: reason}, j.failure()
	}

	window := requested.Clamp(duration)
	res := Result{Window: window, SourceDuration: duration}
	if j.r.opts.SkipFullWindow && window.Covers(duration) {
		res.Reason = ReasonFullWindow
		return res, nil
	}

	if reason, err := j.buildPipeline(); reason != "" {
		res.Reason = reason
		return res, err
	}

	j.mu.Lock()
	j.window = window
	j.gate.issue()
	j.mu.Unlock()
	j.player.Seek(window.Start)
	j.mu.Lock()
	fire := j.gate.requestStart()
	j.mu.Unlock()
	if fire {
		j.startRecording()
	}

	select {
	case <-j.stopped:
	case <-j.failed:
	case <-ctx.Done():
		res.Reason = ReasonCanceled
		return res, ctx.Err()
	}

	j.mu.Lock()
	err, reason := j.err, j.reason
	chunks := j.chunks
	j.mu.Unlock()
	if err != nil {
		res.Reason = reason
		return res, err
	}
	out := media.Concat(media.ContentTypeWebM, chunks)
	if out.Empty() {
		res.Reason = ReasonEmptyOutput
		return res, nil
	}
	res.Container = out
	res.Applied = true
	return res, nil
}

func (j *job) load(ctx context.Context, src *media.Container) (string, error) {
	player, err := j.r.opts.Players.Load(ctx, src, media.PlayerEvents{
		OnLoadedMetadata: j.onMetadata,
		OnSeeked:         j.onSeeked,
		OnTimeUpdate:     j.onTimeUpdate,
		OnEnded:          j.onEnded,
		OnError:          j.onPlayerError,
	})
	if err != nil {
		return ReasonLoadFailed, err
	}
	j.player = player
	return "", nil
}

// resolveDuration waits for metadata, then reads the duration, retrying
// exactly once after the configured delay when the first value is unusable.
func (j *job) resolveDuration(ctx context.Context) (float64, string) {
	select {
	case <-j.metadata:
	case <-j.failed:
		return 0, ReasonLoadFailed
	case <-ctx.Done():
		j.fail(ReasonCanceled, ctx.Err())
		return 0, ReasonCanceled
	}
	duration := j.player.Duration()
	if media.ValidDuration(duration) {
		return duration, ""
	}
	j.logger.Debug("duration not reported yet, retrying once",
		logging.Float64("reported", duration),
		logging.Duration("delay", j.r.opts.DurationRetryDelay),
	)
	timer := time.NewTimer(j.r.opts.DurationRetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-j.failed:
		return 0, ReasonLoadFailed
	case <-ctx.Done():
		j.fail(ReasonCanceled, ctx.Err())
		return 0, ReasonCanceled
	}
	duration = j.player.Duration()
	if !media.ValidDuration(duration) {
		return 0, ReasonNoDuration
	}
	return duration, ""
}

func (j *job) buildPipeline() (string, error) {
	opts := j.r.opts
	width, height := j.player.VideoSize()
	if width <= 0 || height <= 0 {
		width, height = opts.DefaultWidth, opts.DefaultHeight
	}

	surface, err := opts.Surfaces.NewSurface(j.player, width, height)
	if err != nil {
		return ReasonNoSurface, err
	}
	j.surface = surface
	canvas, err := surface.Context2D()
	if err != nil || canvas == nil {
		return ReasonNoCanvas, err
	}
	j.canvas = canvas
	out, err := surface.CaptureStream(opts.FrameRate)
	if err != nil {
		return ReasonNoSurface, err
	}
	j.out = out

	graph, err := opts.AudioGraphs.NewAudioGraph(j.player)
	if err != nil {
		return ReasonNoAudioGraph, err
	}
	j.graph = graph
	tap, err := graph.Tap()
	if err != nil {
		return ReasonNoAudioGraph, err
	}
	for _, track := range tap.Transfer().Tracks() {
		out.AddTrack(track)
	}

	recorder, err := opts.Recorders.NewRecorder(out, media.RecorderOptions{
		MIMEType:  media.RecorderMIME,
		Timeslice: opts.Timeslice,
	}, media.RecorderEvents{
		OnData:  j.onData,
		OnStop:  j.onRecorderStop,
		OnError: j.onRecorderError,
	})
	if err != nil {
		return ReasonRecorder, err
	}
	j.recorder = recorder
	j.logger.Debug("replay pipeline ready",
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Int("frame_rate", opts.FrameRate),
		logging.Int("tracks", out.Len()),
	)
	return "", nil
}

// startRecording runs once, after the gate fires: recorder first, then playback.
func (j *job) startRecording() {
	if err := j.recorder.Start(); err != nil {
		j.fail(ReasonRecorder, services.Wrap(services.ErrTrimUnavailable, "trimming", "start recorder", ReasonRecorder, err))
		return
	}
	j.mu.Lock()
	j.recording = true
	j.mu.Unlock()
	if err := j.player.Play(); err != nil {
		j.fail(ReasonPlayback, services.Wrap(services.ErrTrimUnavailable, "trimming", "play", ReasonPlayback, err))
	}
}

func (j *job) onMetadata() {
	j.metadataOnce.Do(func() { close(j.metadata) })
}

func (j *job) onSeeked() {
	j.mu.Lock()
	fire := j.gate.seekCompleted()
	j.mu.Unlock()
	if fire {
		j.startRecording()
	}
}

func (j *job) onTimeUpdate(position float64) {
	j.mu.Lock()
	canvas := j.canvas
	j.mu.Unlock()
	if canvas != nil {
		if err := canvas.DrawFrame(position); err != nil {
			j.logger.Debug("frame draw failed", logging.Float64("position", position), logging.Error(err))
		}
	}

	j.mu.Lock()
	reached := j.recording && !j.ending && position >= j.window.End
	if reached {
		j.ending = true
	}
	j.mu.Unlock()
	if reached {
		j.endPlayback()
	}
}

func (j *job) onEnded() {
	j.mu.Lock()
	reached := j.recording && !j.ending
	if reached {
		j.ending = true
	}
	j.mu.Unlock()
	if reached {
		j.endPlayback()
	}
}

// endPlayback pauses, stops the recorder, and releases the audio graph.
func (j *job) endPlayback() {
	j.player.Pause()
	j.stopRecorder()
	j.closeGraph()
}

func (j *job) stopRecorder() {
	j.stopRequest.Do(func() {
		if err := j.recorder.Stop(); err != nil {
			j.fail(ReasonRecorder, services.Wrap(services.ErrTrimUnavailable, "trimming", "stop recorder", ReasonRecorder, err))
			j.onRecorderStop()
		}
	})
}

func (j *job) closeGraph() {
	j.graphOnce.Do(func() {
		if j.graph == nil {
			return
		}
		if err := j.graph.Close(); err != nil {
			j.logger.Debug("audio graph close failed", logging.Error(err))
		}
	})
}

func (j *job) onData(data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	j.mu.Lock()
	j.chunks = append(j.chunks, media.Chunk{Seq: len(j.chunks), Data: cp})
	j.mu.Unlock()
}

func (j *job) onRecorderStop() {
	j.stopOnce.Do(func() { close(j.stopped) })
}

func (j *job) onRecorderError(err error) {
	j.fail(ReasonRecorder, services.Wrap(services.ErrTrimUnavailable, "trimming", "record", ReasonRecorder, err))
}

func (j *job) onPlayerError(err error) {
	j.fail(ReasonPlayback, services.Wrap(services.ErrTrimUnavailable, "trimming", "playback", ReasonPlayback, err))
}

func (j *job) fail(reason string, err error) {
	j.mu.Lock()
	if j.err == nil {
		j.err = err
		j.reason = reason
	}
	j.mu.Unlock()
	j.failOnce.Do(func() { close(j.failed) })
}

func (j *job) failure() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// release tears down everything run acquired, on every path. A started
// recorder is stopped and its final OnStop awaited unless ctx is done.
func (j *job) release(ctx context.Context) {
	j.mu.Lock()
	started := j.recording
	j.mu.Unlock()
	if started {
		j.stopRecorder()
		select {
		case <-j.stopped:
		case <-ctx.Done():
		}
	}
	if j.player != nil {
		j.player.Pause()
	}
	j.closeGraph()
	j.out.StopAll()
	if j.surface != nil {
		if err := j.surface.Close(); err != nil {
			j.logger.Debug("surface close failed", logging.Error(err))
		}
	}
	if j.player != nil {
		if err := j.player.Close(); err != nil {
			j.logger.Debug("player close failed", logging.Error(err))
		}
	}
}

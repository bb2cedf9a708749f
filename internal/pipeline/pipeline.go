package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenclip/internal/fileutil"
	"screenclip/internal/library"
	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/metrics"
	"screenclip/internal/recording"
	"screenclip/internal/services"
	"screenclip/internal/trim"
	"screenclip/internal/upload"
)

// Acquirer produces the live stream for a new take.
type Acquirer interface {
	Acquire(ctx context.Context) (*media.Stream, error)
}

// Trimmer re-encodes a recording between two bounds.
type Trimmer interface {
	Trim(ctx context.Context, src *media.Container, window media.TrimWindow) trim.Result
	Skip(src *media.Container) trim.Result
	Duration(ctx context.Context, src *media.Container) (float64, error)
}

// Uploader stores a container with the share service.
type Uploader interface {
	Upload(ctx context.Context, container *media.Container, title string) (upload.ShareResult, error)
}

// History persists what happened to each take.
type History interface {
	CreateTake(ctx context.Context, take *library.Take) (*library.Take, error)
	SetStage(ctx context.Context, id, stage string) error
	RecordTrim(ctx context.Context, id string, outcome library.TrimOutcome) error
	ClearTrim(ctx context.Context, id string) error
	RecordShare(ctx context.Context, id string, outcome library.ShareOutcome) error
	RecordUploadFailure(ctx context.Context, id, reason string) error
}

// Options wires a Pipeline. History, Metrics, and ArtifactDir are optional.
type Options struct {
	Acquirer          Acquirer
	Recorders         media.RecorderFactory
	RecorderTimeslice time.Duration
	Trimmer           Trimmer
	Uploader          Uploader
	History           History
	Metrics           *metrics.Pipeline
	// ArtifactDir receives <take>-raw.webm and <take>-trimmed.webm exports.
	ArtifactDir string
	Logger      *slog.Logger
}

// Pipeline drives one take at a time through the Controller, calling the
// capture, recording, trim, and upload components for each stage.
type Pipeline struct {
	opts   Options
	ctrl   *Controller
	logger *slog.Logger

	mu       sync.Mutex
	takeID   string
	session  *recording.Session
	rawPath  string
	trimPath string
}

// New builds a pipeline in the record stage.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		opts:   opts,
		ctrl:   NewController(),
		logger: logging.NewComponentLogger(opts.Logger, "pipeline"),
	}
	p.ctrl.OnTransition(p.observeTransition)
	return p
}

// Controller exposes the underlying state machine.
func (p *Pipeline) Controller() *Controller { return p.ctrl }

// Stage returns the current stage.
func (p *Pipeline) Stage() Stage { return p.ctrl.Stage() }

// TakeID identifies the take in flight, or "" in the record stage.
func (p *Pipeline) TakeID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.takeID
}

// ArtifactPaths reports where the raw and trimmed containers were exported.
func (p *Pipeline) ArtifactPaths() (raw, trimmed string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rawPath, p.trimPath
}

// StartCapture acquires the screen and starts recording a new take. The
// returned session is controlled by the caller; FinishCapture collects it.
func (p *Pipeline) StartCapture(ctx context.Context) (*recording.Session, error) {
	if p.ctrl.Stage() != StageRecord {
		return nil, p.ctrl.reject("start capture")
	}
	p.mu.Lock()
	if p.session != nil {
		p.mu.Unlock()
		return nil, services.Wrap(services.ErrValidation, StageRecord.Label(), "start capture", "a capture is already running", nil)
	}
	takeID := uuid.NewString()
	p.takeID = takeID
	p.rawPath, p.trimPath = "", ""
	p.mu.Unlock()

	ctx = p.takeContext(ctx, takeID, StageRecord)
	logger := logging.WithContext(ctx, p.logger)

	stream, err := p.opts.Acquirer.Acquire(ctx)
	if err != nil {
		p.clearTake()
		switch {
		case errors.Is(err, services.ErrCaptureDenied):
			p.opts.Metrics.ObserveCapture("denied")
		default:
			p.opts.Metrics.ObserveCapture("error")
		}
		return nil, err
	}

	tracks := stream.Len()
	session := recording.New(recording.Options{
		Recorders: p.opts.Recorders,
		Timeslice: p.opts.RecorderTimeslice,
		Logger:    p.opts.Logger,
	})
	if err := session.Start(ctx, stream); err != nil {
		stream.StopAll()
		p.clearTake()
		p.opts.Metrics.ObserveCapture("error")
		return nil, err
	}
	session.OnAutoStop(func() {
		logger.Info("capture ended by the display source", logging.String(logging.FieldEventType, "capture_auto_stop"))
	})

	p.mu.Lock()
	p.session = session
	p.mu.Unlock()
	p.opts.Metrics.ObserveCapture("ok")
	logger.Info("capture started", logging.Int("tracks", tracks))
	return session, nil
}

// FinishCapture waits for the running session to finalize, records the take,
// and moves to the trim stage. A recorder error is logged; the chunks that
// arrived before it still form the take.
func (p *Pipeline) FinishCapture(ctx context.Context) (*media.Container, error) {
	p.mu.Lock()
	session, takeID := p.session, p.takeID
	p.mu.Unlock()
	if session == nil {
		return nil, services.Wrap(services.ErrValidation, StageRecord.Label(), "finish capture", "no capture is running", nil)
	}

	ctx = p.takeContext(ctx, takeID, StageRecord)
	logger := logging.WithContext(ctx, p.logger)

	raw, recErr := session.Wait(ctx)
	if raw == nil {
		return nil, recErr
	}
	// The session is finalized; a failure below loses this take but must
	// not block the next capture.
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	if recErr != nil {
		logging.WarnWithContext(logger, "recorder failed, keeping the chunks received so far", "recorder_error",
			logging.Error(recErr),
			logging.String(logging.FieldImpact, "the take may end early"),
		)
	}

	rawPath, err := p.export(takeID, "raw", raw)
	if err != nil {
		p.clearTake()
		return nil, err
	}
	if p.opts.History != nil {
		if _, err := p.opts.History.CreateTake(ctx, &library.Take{
			ID:             takeID,
			Stage:          StageTrim.String(),
			RawPath:        rawPath,
			RawBytes:       int64(raw.Size()),
			ElapsedSeconds: session.Elapsed(),
			AutoStopped:    session.AutoStopped(),
		}); err != nil {
			p.clearTake()
			return nil, fmt.Errorf("record take: %w", err)
		}
	}
	p.opts.Metrics.ObserveRecording(session.Elapsed(), raw.Size())

	if err := p.ctrl.RecordingComplete(raw); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.rawPath = rawPath
	p.mu.Unlock()

	logger.Info("capture finalized",
		logging.Int("bytes", raw.Size()),
		logging.Int("elapsed_seconds", session.Elapsed()),
		logging.Bool("auto_stopped", session.AutoStopped()),
	)
	return raw, nil
}

// Resume re-enters the pipeline for a take saved earlier. With a nil trimmed
// container the pipeline lands in the trim stage, otherwise in upload.
func (p *Pipeline) Resume(take *library.Take, raw, trimmed *media.Container) error {
	if take == nil || raw == nil {
		return services.Wrap(services.ErrValidation, StageRecord.Label(), "resume take", "take and raw recording are required", nil)
	}
	p.mu.Lock()
	p.takeID = take.ID
	p.rawPath, p.trimPath = take.RawPath, take.TrimmedPath
	p.mu.Unlock()
	if err := p.ctrl.RecordingComplete(raw); err != nil {
		p.clearTake()
		return err
	}
	if trimmed != nil {
		result := trim.Result{Container: trimmed, Applied: take.TrimApplied, Reason: take.TrimReason}
		if err := p.ctrl.TrimComplete(result); err != nil {
			return err
		}
	}
	return nil
}

// Duration probes the raw recording so a caller can pick trim bounds.
func (p *Pipeline) Duration(ctx context.Context) (float64, error) {
	raw := p.ctrl.Raw()
	if p.ctrl.Stage() != StageTrim || raw == nil {
		return 0, p.ctrl.reject("probe duration")
	}
	return p.opts.Trimmer.Duration(p.takeContext(ctx, p.TakeID(), StageTrim), raw)
}

// Trim re-encodes the raw recording to window and moves to upload. Trim
// problems degrade to a passthrough and never fail the stage.
func (p *Pipeline) Trim(ctx context.Context, window media.TrimWindow) (trim.Result, error) {
	if p.ctrl.Stage() != StageTrim {
		return trim.Result{}, p.ctrl.reject("trim")
	}
	ctx = p.takeContext(ctx, p.TakeID(), StageTrim)
	result := p.opts.Trimmer.Trim(ctx, p.ctrl.Raw(), window)
	return result, p.completeTrim(ctx, result, window)
}

// SkipTrim forwards the raw recording untouched.
func (p *Pipeline) SkipTrim(ctx context.Context) (trim.Result, error) {
	if p.ctrl.Stage() != StageTrim {
		return trim.Result{}, p.ctrl.reject("skip trim")
	}
	ctx = p.takeContext(ctx, p.TakeID(), StageTrim)
	result := p.opts.Trimmer.Skip(p.ctrl.Raw())
	return result, p.completeTrim(ctx, result, media.TrimWindow{})
}

func (p *Pipeline) completeTrim(ctx context.Context, result trim.Result, requested media.TrimWindow) error {
	takeID := p.TakeID()
	trimPath := ""
	if result.Applied {
		path, err := p.export(takeID, "trimmed", result.Container)
		if err != nil {
			return err
		}
		trimPath = path
	}
	if p.opts.History != nil && takeID != "" {
		window := result.Window
		if window.Span() <= 0 {
			window = requested
		}
		if err := p.opts.History.RecordTrim(ctx, takeID, library.TrimOutcome{
			Path:    trimPath,
			Bytes:   int64(result.Container.Size()),
			Applied: result.Applied,
			Reason:  result.Reason,
			Start:   window.Start,
			End:     window.End,
		}); err != nil {
			return fmt.Errorf("record trim: %w", err)
		}
	}
	p.opts.Metrics.ObserveTrim(result.Applied, result.Reason, result.Container.Size())
	if err := p.ctrl.TrimComplete(result); err != nil {
		return err
	}
	p.mu.Lock()
	p.trimPath = trimPath
	p.mu.Unlock()
	return nil
}

// Upload sends the trim stage's output. On failure the pipeline stays in the
// upload stage with the artifact kept, and the error matches ErrUpload.
func (p *Pipeline) Upload(ctx context.Context, title string) (upload.ShareResult, error) {
	result, ok := p.ctrl.Trimmed()
	if p.ctrl.Stage() != StageUpload || !ok {
		return upload.ShareResult{}, p.ctrl.reject("upload")
	}
	takeID := p.TakeID()
	ctx = p.takeContext(ctx, takeID, StageUpload)

	share, err := p.opts.Uploader.Upload(ctx, result.Container, title)
	if err != nil {
		if ctx.Err() != nil {
			return upload.ShareResult{}, err
		}
		reason := upload.Reason(err)
		if ferr := p.ctrl.UploadFailed(reason); ferr != nil {
			return upload.ShareResult{}, ferr
		}
		if p.opts.History != nil && takeID != "" {
			if herr := p.opts.History.RecordUploadFailure(ctx, takeID, reason); herr != nil {
				p.logger.Warn("failed to record upload failure", logging.Error(herr))
			}
		}
		p.opts.Metrics.ObserveUpload(false)
		if !errors.Is(err, services.ErrUpload) {
			err = &upload.Failure{Reason: reason, Err: err}
		}
		return upload.ShareResult{}, err
	}

	if p.opts.History != nil && takeID != "" {
		if err := p.opts.History.RecordShare(ctx, takeID, library.ShareOutcome{
			VideoID:  share.ID,
			ShareID:  share.ShareID,
			ShareURL: share.ShareURL,
			MediaURL: share.URL,
			Title:    share.Title,
		}); err != nil {
			return upload.ShareResult{}, fmt.Errorf("record share: %w", err)
		}
	}
	p.opts.Metrics.ObserveUpload(true)
	if err := p.ctrl.UploadComplete(share); err != nil {
		return upload.ShareResult{}, err
	}
	return share, nil
}

// BackToRecord discards the current recording.
func (p *Pipeline) BackToRecord(ctx context.Context) error {
	takeID := p.TakeID()
	if err := p.ctrl.BackToRecord(); err != nil {
		return err
	}
	if p.opts.History != nil && takeID != "" {
		if err := p.opts.History.SetStage(ctx, takeID, "discarded"); err != nil {
			p.logger.Warn("failed to mark take discarded", logging.Error(err))
		}
	}
	p.clearTake()
	return nil
}

// BackToTrim forgets the trim choice so the recording can be trimmed again.
func (p *Pipeline) BackToTrim(ctx context.Context) error {
	takeID := p.TakeID()
	if err := p.ctrl.BackToTrim(); err != nil {
		return err
	}
	if p.opts.History != nil && takeID != "" {
		if err := p.opts.History.ClearTrim(ctx, takeID); err != nil {
			p.logger.Warn("failed to clear trim", logging.Error(err))
		}
	}
	p.mu.Lock()
	p.trimPath = ""
	p.mu.Unlock()
	return nil
}

// RecordAnother leaves the share stage for a fresh take.
func (p *Pipeline) RecordAnother() error {
	if err := p.ctrl.RecordAnother(); err != nil {
		return err
	}
	p.clearTake()
	return nil
}

// Close stops a running capture and waits for it to release its tracks.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.mu.Unlock()
	if session == nil {
		return nil
	}
	session.Stop()
	_, err := session.Wait(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Pipeline) export(takeID, kind string, c *media.Container) (string, error) {
	if p.opts.ArtifactDir == "" || c.Empty() {
		return "", nil
	}
	name := fmt.Sprintf("%s-%s.webm", takeID, kind)
	if takeID == "" {
		name = fmt.Sprintf("%s-%d.webm", kind, c.ID())
	}
	path := filepath.Join(p.opts.ArtifactDir, name)
	if _, err := fileutil.WriteAtomic(path, c.Reader()); err != nil {
		return "", services.Wrap(services.ErrTransient, "", "export "+kind, "write artifact", err)
	}
	return path, nil
}

func (p *Pipeline) observeTransition(tr Transition) {
	p.opts.Metrics.ObserveTransition(tr.From.String(), tr.To.String())
	p.logger.Info("stage changed",
		logging.String(logging.FieldTakeID, p.TakeID()),
		logging.String(logging.FieldEventType, "stage_transition"),
		logging.String("from", tr.From.Label()),
		logging.String("to", tr.To.Label()),
		logging.String("event", tr.Event),
	)
}

func (p *Pipeline) takeContext(ctx context.Context, takeID string, stage Stage) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithTakeID(ctx, takeID)
	return services.WithStage(ctx, stage.Label())
}

func (p *Pipeline) clearTake() {
	p.mu.Lock()
	p.takeID = ""
	p.rawPath, p.trimPath = "", ""
	p.mu.Unlock()
}

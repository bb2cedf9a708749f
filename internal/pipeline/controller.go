package pipeline

import (
	"fmt"
	"sync"

	"screenclip/internal/media"
	"screenclip/internal/services"
	"screenclip/internal/trim"
	"screenclip/internal/upload"
)

// Stage is a pipeline position.
type Stage int

const (
	StageRecord Stage = iota
	StageTrim
	StageUpload
	StageShare
)

func (s Stage) String() string {
	switch s {
	case StageRecord:
		return "record"
	case StageTrim:
		return "trim"
	case StageUpload:
		return "upload"
	case StageShare:
		return "share"
	default:
		return "unknown"
	}
}

// Label is the stage name used in logs and error details.
func (s Stage) Label() string {
	switch s {
	case StageRecord:
		return "capturing"
	case StageTrim:
		return "trimming"
	case StageUpload:
		return "uploading"
	case StageShare:
		return "sharing"
	default:
		return "unknown"
	}
}

// Transition describes one stage change.
type Transition struct {
	From  Stage
	To    Stage
	Event string
}

// Controller is the record → trim → upload → share state machine. Artifact
// exposes one slot per stage: nothing, the raw recording, the trim result,
// then the share result.
//
// The upload stage is the one exception to single ownership: the raw
// recording stays referenced next to the trim result so BackToTrim can put
// it back in the slot without re-reading the export. Both are dropped on
// UploadComplete.
type Controller struct {
	mu        sync.Mutex
	stage     Stage
	raw       *media.Container
	trimmed   *trim.Result
	share     *upload.ShareResult
	failure   string
	listeners []func(Transition)
}

// NewController starts in the record stage with nothing held.
func NewController() *Controller {
	return &Controller{stage: StageRecord}
}

// OnTransition registers fn to run after every successful transition.
func (c *Controller) OnTransition(fn func(Transition)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Stage returns the current stage.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Artifact returns the current stage's slot: nil in record, the raw
// *media.Container in trim, the trim.Result in upload, the
// upload.ShareResult in share.
func (c *Controller) Artifact() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.stage {
	case StageTrim:
		return c.raw
	case StageUpload:
		return *c.trimmed
	case StageShare:
		return *c.share
	default:
		return nil
	}
}

// Raw returns the recording being trimmed or uploaded, or nil.
func (c *Controller) Raw() *media.Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw
}

// Trimmed returns the trim outcome while in the upload stage.
func (c *Controller) Trimmed() (trim.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trimmed == nil {
		return trim.Result{}, false
	}
	return *c.trimmed, true
}

// Share returns the share result while in the share stage.
func (c *Controller) Share() (upload.ShareResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.share == nil {
		return upload.ShareResult{}, false
	}
	return *c.share, true
}

// LastFailure returns the reason of the most recent failed upload attempt.
func (c *Controller) LastFailure() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// RecordingComplete hands a finalized recording to the trim stage.
func (c *Controller) RecordingComplete(raw *media.Container) error {
	if raw == nil {
		return services.Wrap(services.ErrValidation, StageRecord.Label(), "recording complete", "no recording", nil)
	}
	return c.transition("recording complete", StageRecord, StageTrim, func() {
		c.raw = raw
	})
}

// TrimComplete hands the trimmed (or passed-through) container to upload.
func (c *Controller) TrimComplete(result trim.Result) error {
	if result.Container == nil {
		return services.Wrap(services.ErrValidation, StageTrim.Label(), "trim complete", "no container", nil)
	}
	return c.transition("trim complete", StageTrim, StageUpload, func() {
		c.trimmed = &result
		c.failure = ""
	})
}

// UploadComplete stores the share result and releases the media.
func (c *Controller) UploadComplete(share upload.ShareResult) error {
	return c.transition("upload complete", StageUpload, StageShare, func() {
		c.share = &share
		c.raw = nil
		c.trimmed = nil
		c.failure = ""
	})
}

// UploadFailed keeps the upload stage and its artifact for a retry.
func (c *Controller) UploadFailed(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageUpload {
		return c.invalid("upload failed")
	}
	if reason == "" {
		reason = upload.FallbackReason
	}
	c.failure = reason
	return nil
}

// BackToRecord discards the raw recording.
func (c *Controller) BackToRecord() error {
	return c.transition("back to record", StageTrim, StageRecord, func() {
		c.raw = nil
	})
}

// BackToTrim discards the trim choice; the raw recording is the slot again.
func (c *Controller) BackToTrim() error {
	return c.transition("back to trim", StageUpload, StageTrim, func() {
		c.trimmed = nil
		c.failure = ""
	})
}

// RecordAnother clears everything and starts over.
func (c *Controller) RecordAnother() error {
	return c.transition("record another", StageShare, StageRecord, func() {
		c.share = nil
	})
}

// Reset drops every held artifact and returns to record from any stage.
func (c *Controller) Reset() {
	c.mu.Lock()
	from := c.stage
	c.stage = StageRecord
	c.raw, c.trimmed, c.share, c.failure = nil, nil, nil, ""
	listeners := append([]func(Transition){}, c.listeners...)
	c.mu.Unlock()
	if from == StageRecord {
		return
	}
	for _, fn := range listeners {
		fn(Transition{From: from, To: StageRecord, Event: "reset"})
	}
}

func (c *Controller) transition(event string, from, to Stage, apply func()) error {
	c.mu.Lock()
	if c.stage != from {
		err := c.invalid(event)
		c.mu.Unlock()
		return err
	}
	apply()
	c.stage = to
	listeners := append([]func(Transition){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(Transition{From: from, To: to, Event: event})
	}
	return nil
}

// reject reports that event is not allowed in the current stage.
func (c *Controller) reject(event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalid(event)
}

// invalid must be called with c.mu held.
func (c *Controller) invalid(event string) error {
	return services.Wrap(services.ErrInvalidTransition, c.stage.Label(), event,
		fmt.Sprintf("not allowed in the %s stage", c.stage), nil)
}

package media

import (
	"context"
	"time"
)

// DisplayRequest asks the backend for a display capture.
type DisplayRequest struct {
	FrameRate int
	// Audio requests system audio alongside the display in the same grant.
	Audio bool
}

// UserMediaRequest asks the backend for a microphone capture.
type UserMediaRequest struct {
	Audio bool
}

// Devices grants live capture streams. Both calls may block until the user
// answers a permission prompt; ctx cancels the wait.
type Devices interface {
	GetDisplayMedia(ctx context.Context, req DisplayRequest) (*Stream, error)
	GetUserMedia(ctx context.Context, req UserMediaRequest) (*Stream, error)
}

// RecorderOptions configures a chunked recorder.
type RecorderOptions struct {
	MIMEType  string
	Timeslice time.Duration
}

// RecorderEvents receives recorder notifications. Callbacks for one recorder
// are delivered serially, never concurrently. After Stop, any buffered data
// is delivered through OnData before OnStop. OnStop fires exactly once, also
// after a fatal OnError.
type RecorderEvents struct {
	OnData  func(data []byte)
	OnStop  func()
	OnError func(err error)
}

// RecorderFactory builds recorders over a stream without starting them.
type RecorderFactory interface {
	NewRecorder(stream *Stream, opts RecorderOptions, events RecorderEvents) (Recorder, error)
}

// Recorder encodes a stream into timesliced chunks.
type Recorder interface {
	Start() error
	Pause() error
	Resume() error
	// Stop requests a final flush; completion is signalled by OnStop.
	Stop() error
}

// PlayerEvents receives playback notifications on backend goroutines.
type PlayerEvents struct {
	OnLoadedMetadata func()
	// OnSeeked fires once a requested seek has completed.
	OnSeeked     func()
	OnTimeUpdate func(position float64)
	OnEnded      func()
	OnError      func(err error)
}

// PlayerFactory decodes a finalized container for replay.
type PlayerFactory interface {
	Load(ctx context.Context, c *Container, events PlayerEvents) (Player, error)
}

// Player is a decode context over one container.
type Player interface {
	// Duration returns the reported length in seconds. NaN, Inf, or a
	// non-positive value means it is not known yet.
	Duration() float64
	// VideoSize returns the native pixel dimensions, or zeros when unknown.
	VideoSize() (width, height int)
	CurrentTime() float64
	// Seek is asynchronous; completion is reported through OnSeeked.
	Seek(position float64)
	Play() error
	Pause()
	Close() error
}

// SurfaceFactory builds render surfaces fed from a player.
type SurfaceFactory interface {
	NewSurface(source Player, width, height int) (Surface, error)
}

// Surface is a drawable frame buffer that can be captured as a video stream.
type Surface interface {
	Size() (width, height int)
	// Context2D returns the drawing context. A nil Canvas means none is available.
	Context2D() (Canvas, error)
	CaptureStream(frameRate int) (*Stream, error)
	Close() error
}

// Canvas draws the source frame at the given playback position.
type Canvas interface {
	DrawFrame(position float64) error
}

// AudioGraphFactory builds audio routing graphs fed from a player.
type AudioGraphFactory interface {
	NewAudioGraph(source Player) (AudioGraph, error)
}

// AudioGraph routes the player's audio to the listening output and to a
// capturable destination.
type AudioGraph interface {
	// Tap returns the capturable destination's tracks.
	Tap() (*Stream, error)
	Close() error
}

// Package media defines the capture pipeline's data model and the ports a
// media backend implements.
//
// Tracks are grouped into a Stream that its owner stops exactly once. Recorded
// fragments arrive as Chunks and are finalized into an immutable Container
// with Concat. TrimWindow describes the replay range used by the trim stage.
//
// The backend ports (Devices, RecorderFactory, PlayerFactory, SurfaceFactory,
// AudioGraphFactory) keep the capture, recording, and trim state machines
// independent of any one implementation. The ffmpeg package provides the
// production backend and mediatest provides scripted fakes for tests.
package media

// Package recording wraps a live capture stream in a chunked recorder.
//
// A Session owns the stream it is started with and walks the state machine
// idle → recording ⇄ paused → stopping → finalized. Chunks are appended in
// callback order and concatenated into one Container when the recorder's
// final flush completes. The elapsed-seconds timer only runs while recording,
// and every owned track is stopped exactly once on finalize, whether the
// session was stopped manually, auto-stopped by the display track ending, or
// ended by a recorder error.
package recording

// Package pipeline sequences a take through record, trim, upload, and share.
//
// Controller is the pure state machine: it validates every transition,
// holds the artifact belonging to the current stage, and notifies listeners.
// Pipeline drives it, calling the capture acquirer, the recording session,
// the trim re-encoder, and the upload client, and mirroring each step into
// the library history, the metrics registry, and the log.
package pipeline

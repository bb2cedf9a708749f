// Package upload talks to the share service that stores finished recordings.
//
// Client.Upload posts a container as multipart form data and returns the
// ShareResult the service assigns. Resolve fetches the public record behind a
// share id, and RecordView/RecordWatch feed the service's analytics counters.
// Failures reported by the service surface as *Failure values that match
// services.ErrUpload so callers can keep the artifact and offer a retry.
package upload

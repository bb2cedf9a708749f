// Package services defines shared utilities consumed by the capture pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp take IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so capture denial, trim
//     fallback, and upload failures are classified the same way everywhere.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services

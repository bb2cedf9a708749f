// Package library keeps a local SQLite history of recorded takes.
//
// Each take row tracks where its raw and trimmed containers were exported,
// the trim outcome (applied or passthrough with the reason), and the share
// result once the upload succeeds. Failed uploads keep their reason so the
// CLI can offer a retry from the saved artifact.
//
// Schema changes bump schemaVersion in schema.go; users delete the database
// to adopt the new schema.
package library

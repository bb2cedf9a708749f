// Package artifacts manages the exported recordings in the recordings
// directory.
//
// Every take leaves <take>-raw.webm and, when a trim was applied,
// <take>-trimmed.webm next to it. The ffmpeg backend also spools there:
// replay-*.webm copies while a trim runs and segment-*.webm files while a
// take is recorded. The helpers here list those files and remove the ones
// nothing refers to any more: spools left behind by an interrupted run, and
// exports whose take was pruned from the library.
package artifacts

// Package preflight provides readiness checks for the directories, binaries,
// capture devices, and upload service screenclip depends on.
//
// These checks run in two contexts:
//   - "screenclip record" calls RunAll before acquiring capture so a missing
//     directory or unreachable upload service is reported up front.
//   - "screenclip doctor" runs every check, including the ffmpeg capability
//     and capture device probes, and prints the results as a table.
package preflight

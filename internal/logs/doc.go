// Package logs reads the screenclip log file for `screenclip logs`.
//
// Tail returns the last N lines (optionally only those mentioning a take id)
// together with the byte offset reached, and Follow polls from that offset
// for lines appended later until its context ends.
package logs

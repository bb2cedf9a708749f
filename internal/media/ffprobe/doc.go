// Package ffprobe wraps ffprobe's JSON output.
//
// Inspect returns container and stream metadata. Recorder output written to a
// pipe carries no duration in its header, so PacketDuration derives one from
// the last packet timestamp instead. Result.Duration prefers the header value
// and falls back to the packet-derived one.
package ffprobe

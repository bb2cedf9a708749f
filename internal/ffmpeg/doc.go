// Package ffmpeg implements the media backend ports with the ffmpeg and
// ffprobe command-line tools.
//
// Devices grants x11grab display capture and PulseAudio system or
// microphone sources after a short probe run; a failing probe is reported as
// a denied capture. Tracks are descriptions of ffmpeg inputs: nothing runs
// until a Recorder starts, at which point every track of its stream becomes
// an input of an ffmpeg process writing a WebM segment into the work dir.
// Pause ends the running segment and Resume starts the next one, so paused
// time never reaches the output. Stop joins the segments with the concat
// demuxer and delivers the result in chunks.
//
// For trimming, a Player writes the container to a temp file, reads its
// metadata with ffprobe, and runs a virtual playback clock that reports
// positions about four times a second. Surfaces and audio graphs expose the
// same file as replay tracks, so the recorder re-encodes it in real time
// (-re) from the player's position when recording starts. When a playback
// sink is configured, the replayed audio is also sent to PulseAudio so the
// trim can be heard.
package ffmpeg

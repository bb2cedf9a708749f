// Package capture acquires the live streams a recording session consumes.
//
// The Acquirer requests the display (with system audio) and, as a best-effort
// addition, the microphone. Only a display failure is fatal; a missing
// microphone degrades to display audio only. Tracks are merged in the order
// display video, display audio, microphone audio.
package capture

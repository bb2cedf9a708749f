// Command screenclip records the screen, trims the recording, uploads it,
// and prints a share link.
//
// "screenclip record" runs the whole pipeline in one go: it acquires the
// display (plus system audio and microphone when enabled), records until
// Enter, Ctrl-C, or the display goes away, optionally trims, and uploads.
// Every take is kept in a local history so "trim", "upload", and "show" can
// pick it up later by id prefix. "doctor" checks binaries, devices, and the
// upload service; "config init" writes a sample configuration.
package main

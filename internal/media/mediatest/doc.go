// Package mediatest provides scripted fakes for the media backend ports.
//
// Fakes share an EventLog so tests can assert the relative order of backend
// calls such as "player.seeked" and "recorder.start".
package mediatest

// Package trim re-records a finished container between two time bounds.
//
// The Reencoder replays the source through a render surface and an audio
// graph tap, recording both into a new container. Recording starts only
// after the replay seek has completed, enforced by a one-shot gate rather
// than callback timing. Any failure falls back to returning the source
// untouched; Result.Applied tells the two outcomes apart.
package trim

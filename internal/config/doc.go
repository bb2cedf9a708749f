// Package config loads, normalizes, and validates screenclip configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SCREENCLIP_UPLOAD_URL. The Config type centralizes every knob the capture
// backend, trim stage, upload client, and CLI need so they are discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

// Package config loads, normalizes, and validates recflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// RECFLOW_OUTPUT_DIR. The Config type centralizes the output root, the
// workspace task directory, batch concurrency bounds, and the default stage
// map that every run configuration starts from.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, clamped concurrency, and clear validation errors.
package config

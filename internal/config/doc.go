// Package config loads, normalizes, and validates mediadesk configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// engines, the CLI, and the HTTP server need, so the work area, output
// directory, and model store are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

// Package config loads, normalizes, and validates genqueue configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GENQUEUE_BASE_URL and GENQUEUE_SESSION. The Config type centralizes every
// knob the CLI and the queue controller need, so server endpoints, storage
// backends, and polling cadence are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

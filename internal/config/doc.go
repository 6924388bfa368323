// Package config loads, normalizes, and validates Soundloom configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REPLICATE_API_TOKEN. The Config type centralizes every knob the daemon and
// CLI need, allowing staging/library directories, mix levels, and generation
// credentials to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

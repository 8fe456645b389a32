// Package config loads, normalizes, and validates Slidecast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SLIDECAST_FFMPEG_PATH and SLIDECAST_API_TOKEN. The Config type centralizes
// the project storage root, the fixed clip profile, and the pipeline limits so
// the daemon and CLI build videos the same way.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

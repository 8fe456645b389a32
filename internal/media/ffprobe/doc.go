// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and Parse decodes its output; Result.Check compares a
// rendered clip against the expected stream shape.
package ffprobe

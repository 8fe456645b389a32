// Package api defines the wire-format types shared by the daemon's HTTP
// handlers and the CLI, plus a small client for talking to a running daemon.
//
// DTOs use camelCase JSON tags. Run states are exposed as lowercase strings
// and timestamps use RFC3339 with milliseconds. Error bodies are always
// {"error": "...", "kind": "..."} and never carry file paths or ffmpeg
// output.
package api

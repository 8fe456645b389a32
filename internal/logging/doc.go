// Package logging assembles structured slog loggers and formatting helpers used
// across Slidecast.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code tags log lines
// with run IDs, project IDs, and stages. A StreamHub keeps recent events in
// memory for the daemon's log endpoint, and a no-op logger serves tests and
// wiring code that cannot fail.
package logging

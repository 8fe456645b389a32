// Package services defines shared utilities consumed by the pipeline stages
// and the daemon.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, project and user IDs, stage names,
//     and request correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify, which turns
//     any pipeline failure into the kind and HTTP status reported to callers.
//
// Use these helpers when wiring new stage logic so error reporting stays
// uniform between the CLI and the HTTP API.
package services

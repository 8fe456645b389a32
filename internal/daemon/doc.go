// Package daemon coordinates the long-running Slidecast process.
//
// It wires configuration, the SQLite store, the ffmpeg engine, and the
// pipeline orchestrator into a single lifecycle with flock-based locking to
// prevent multiple instances. On start it reconciles runs a previous process
// left unfinished and reclaims stale intermediates, then serves the HTTP
// trigger and status API.
//
// Pipeline logic lives in internal/pipeline; the daemon focuses on startup,
// shutdown, and the HTTP surface.
package daemon

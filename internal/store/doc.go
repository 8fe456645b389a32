// Package store persists projects, slides, and the run ledger in SQLite.
//
// Projects and slides are the ingestion data a video is rendered from; the
// Store satisfies slides.Resolver so the pipeline can look them up in
// declared order. The runs table records every pipeline run's state
// transitions and terminal outcome for the status and history surfaces.
//
// The schema is created on first open and guarded by a version number.
// Writes retry on SQLITE_BUSY so the daemon and a concurrent CLI build can
// share one database file.
package store

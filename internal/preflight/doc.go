// Package preflight provides readiness checks for the filesystem paths,
// external binaries, and notification endpoint that Slidecast depends on.
//
// The daemon runs RunAll at startup and logs every failed check; the CLI
// "slidecast status" command renders the same results as a table.
package preflight

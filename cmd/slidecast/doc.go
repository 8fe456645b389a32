// Command slidecast renders slide projects into a single narrated MP4.
//
// `slidecast serve` runs the HTTP daemon. `slidecast build` runs one
// pipeline in-process (or through the daemon with --remote), and the
// project, runs, logs, and status commands inspect and manage state.
package main

// Package ffmpeg manages the ffmpeg binary as a process-wide resource.
//
// Engine resolves and verifies the binary once at startup, runs every
// subprocess in its own process group so cancellation reaches ffmpeg and any
// children, and refuses new work after Close. ClipArgs and ConcatArgs build
// the argument lists for the two invocations the pipeline makes.
package ffmpeg

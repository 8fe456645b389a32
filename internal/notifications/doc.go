// Package notifications delivers ntfy push messages when a video build
// finishes or fails. Without a configured topic every call is a no-op.
package notifications

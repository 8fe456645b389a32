// Package textutil turns project titles and user-supplied names into safe
// file names for downloads and CLI output paths.
package textutil

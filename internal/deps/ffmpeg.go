package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveFFmpegPath returns the ffmpeg binary to execute. An explicit path is
// used as-is; a bare name is looked up on PATH and returned unchanged when the
// lookup fails so the caller reports the configured value.
func ResolveFFmpegPath(configured string) string {
	return resolveBinary(configured, "ffmpeg")
}

// ResolveFFprobePath returns the ffprobe binary to execute.
//
// When ffprobe is left at its default name and ffmpeg resolves to an explicit
// location, an ffprobe sitting next to that ffmpeg wins over PATH. Static
// ffmpeg builds ship both binaries in one directory.
func ResolveFFprobePath(configured, ffmpegPath string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" || configured == "ffprobe" {
		if candidate, ok := siblingBinary(ffmpegPath, "ffprobe"); ok {
			if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
				return candidate
			}
		}
	}
	return resolveBinary(configured, "ffprobe")
}

func resolveBinary(configured, fallback string) string {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = fallback
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}

func siblingBinary(path, name string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" || !strings.ContainsRune(path, filepath.Separator) {
		return "", false
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(path), name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

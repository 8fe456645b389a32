package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"slidecast/internal/logging"
)

// CleanStaleResult contains the outcome of a stale intermediate cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes videos/ directories and concat manifests older than
// maxAge from every project under root. maxAge must exceed the run timeout so
// a live run is never touched.
func CleanStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	users, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, user := range users {
		if !user.IsDir() {
			continue
		}
		projects, err := os.ReadDir(filepath.Join(root, user.Name()))
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: filepath.Join(root, user.Name()), Error: err})
			continue
		}
		for _, project := range projects {
			if ctx.Err() != nil {
				return result
			}
			if !project.IsDir() {
				continue
			}
			layout := Layout{ProjectDir: filepath.Join(root, user.Name(), project.Name())}
			for _, target := range []string{layout.VideosDir(), layout.ManifestPath()} {
				removeIfStale(target, cutoff, &result, logger)
			}
		}
	}
	return result
}

func removeIfStale(path string, cutoff time.Time, result *CleanStaleResult, logger *slog.Logger) {
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
		}
		return
	}
	if !info.ModTime().Before(cutoff) {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
		logging.WarnWithContext(logger, "failed to remove stale intermediate", "workspace_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check projects_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return
	}
	result.Removed = append(result.Removed, path)
	if logger != nil {
		logger.Info("removed stale intermediate",
			logging.String("path", path),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}
}

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrRunInProgress is returned when another run already owns the project.
var ErrRunInProgress = errors.New("run already in progress")

type runInProgressError struct {
	projectID string
}

func (e *runInProgressError) Error() string {
	return fmt.Sprintf("project %s: %v", e.projectID, ErrRunInProgress)
}

func (e *runInProgressError) Unwrap() error { return ErrRunInProgress }

func (e *runInProgressError) ErrorKind() string { return "conflict" }

// projectLocks serializes runs per project. The in-process registry rejects
// concurrent requests inside one daemon; the file lock extends that to a
// CLI build running next to the daemon.
type projectLocks struct {
	dir string

	mu     sync.Mutex
	active map[string]struct{}
}

func newProjectLocks(dir string) *projectLocks {
	return &projectLocks{dir: dir, active: make(map[string]struct{})}
}

func (l *projectLocks) acquire(userID, projectID string) (func(), error) {
	key := userID + "-" + projectID

	l.mu.Lock()
	if _, busy := l.active[key]; busy {
		l.mu.Unlock()
		return nil, &runInProgressError{projectID: projectID}
	}
	l.active[key] = struct{}{}
	l.mu.Unlock()

	forget := func() {
		l.mu.Lock()
		delete(l.active, key)
		l.mu.Unlock()
	}

	if l.dir == "" {
		return forget, nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		forget()
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fileLock := flock.New(filepath.Join(l.dir, key+".lock"))
	ok, err := fileLock.TryLock()
	if err != nil {
		forget()
		return nil, fmt.Errorf("acquire project lock: %w", err)
	}
	if !ok {
		forget()
		return nil, &runInProgressError{projectID: projectID}
	}
	return func() {
		_ = fileLock.Unlock()
		forget()
	}, nil
}

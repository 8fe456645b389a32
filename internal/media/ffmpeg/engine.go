package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"slidecast/internal/deps"
	"slidecast/internal/logging"
	"slidecast/internal/services"
)

// ErrEngineClosed is returned by Run after Close has been called.
var ErrEngineClosed = errors.New("ffmpeg engine closed")

// Runner executes one ffmpeg invocation. Engine.Run satisfies it; tests
// substitute fakes.
type Runner func(ctx context.Context, args ...string) error

const (
	versionTimeout = 10 * time.Second
	stderrTailSize = 4096
)

// ExitError reports a non-zero ffmpeg exit. Tail holds the last bytes of
// stderr for operator logs and must not be shown to API clients.
type ExitError struct {
	Args []string
	Tail string
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpeg exited: %v", e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Engine is the managed ffmpeg resource shared by every run.
type Engine struct {
	configured string
	logger     *slog.Logger

	mu       sync.Mutex
	binary   string
	version  string
	started  bool
	closed   bool
	inflight map[*exec.Cmd]struct{}
	wg       sync.WaitGroup
}

// NewEngine constructs an engine for the configured binary name or path.
func NewEngine(binary string, logger *slog.Logger) *Engine {
	return &Engine{
		configured: strings.TrimSpace(binary),
		logger:     logging.NewComponentLogger(logger, "ffmpeg"),
		inflight:   make(map[*exec.Cmd]struct{}),
	}
}

// Start resolves the binary and records its version. It is safe to call
// more than once.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	binary := deps.ResolveFFmpegPath(e.configured)
	version, err := probeVersion(ctx, binary)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "engine", "start", fmt.Sprintf("ffmpeg binary %q is not usable", binary), err)
	}

	e.mu.Lock()
	e.binary = binary
	e.version = version
	e.started = true
	e.mu.Unlock()

	e.logger.Info("ffmpeg engine started", logging.String("binary", binary), logging.String("version", version))
	return nil
}

// HealthCheck re-runs the version probe against the resolved binary.
func (e *Engine) HealthCheck(ctx context.Context) error {
	e.mu.Lock()
	binary, started, closed := e.binary, e.started, e.closed
	e.mu.Unlock()
	switch {
	case closed:
		return ErrEngineClosed
	case !started:
		return errors.New("ffmpeg engine not started")
	}
	_, err := probeVersion(ctx, binary)
	return err
}

// Version reports the version line recorded by Start.
func (e *Engine) Version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Binary reports the resolved binary path.
func (e *Engine) Binary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.binary != "" {
		return e.binary
	}
	return e.configured
}

// Running reports how many ffmpeg processes are in flight.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

// Run executes ffmpeg with args and blocks until the process exits. When ctx
// ends first the whole process group is killed and ctx.Err() is returned.
func (e *Engine) Run(ctx context.Context, args ...string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	binary := e.binary
	if binary == "" {
		binary = deps.ResolveFFmpegPath(e.configured)
	}
	cmd := exec.Command(binary, args...)
	setProcessGroup(cmd)
	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return services.Wrap(services.ErrExternalTool, "engine", "run", "start ffmpeg", err)
	}
	e.inflight[cmd] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, cmd)
		e.mu.Unlock()
		e.wg.Done()
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return &ExitError{Args: args, Tail: stderr.String(), Err: err}
		}
		return nil
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return ctx.Err()
	}
}

// Close refuses new work, kills in-flight processes, and waits for them.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for cmd := range e.inflight {
		killProcessGroup(cmd)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("ffmpeg engine stopped")
	return nil
}

func probeVersion(ctx context.Context, binary string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	output, err := exec.CommandContext(probeCtx, binary, "-hide_banner", "-version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", binary, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	if !strings.HasPrefix(line, "ffmpeg version") {
		return "", fmt.Errorf("%s -version: unexpected output %q", binary, line)
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "ffmpeg version")), nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}

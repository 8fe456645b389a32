package testsupport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FakeFFmpeg stands in for the ffmpeg binary. Clip invocations write a
// deterministic digest of their inputs; concat invocations append the listed
// clips in manifest order.
type FakeFFmpeg struct {
	// Delay is applied to every invocation and honours context cancellation.
	Delay time.Duration
	// FailWhen, when non-nil, may return an error for an invocation.
	FailWhen func(args []string) error
	// EmptyOutput makes clip invocations write zero bytes.
	EmptyOutput bool

	mu          sync.Mutex
	calls       [][]string
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

// Run satisfies ffmpeg.Runner.
func (f *FakeFFmpeg) Run(ctx context.Context, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	current := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.maxInflight.Load()
		if current <= peak || f.maxInflight.CompareAndSwap(peak, current) {
			break
		}
	}

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.FailWhen != nil {
		if err := f.FailWhen(args); err != nil {
			return err
		}
	}
	if len(args) == 0 {
		return fmt.Errorf("no arguments")
	}
	output := args[len(args)-1]
	inputs := Inputs(args)
	if IsConcat(args) {
		return concatManifest(inputs[0], output)
	}
	if f.EmptyOutput {
		return os.WriteFile(output, nil, 0o644)
	}
	var buf bytes.Buffer
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		fmt.Fprintf(&buf, "[%s:%x]", filepath.Base(in), data)
	}
	return os.WriteFile(output, buf.Bytes(), 0o644)
}

// Calls returns a copy of every recorded argument list.
func (f *FakeFFmpeg) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// MaxInflight reports the peak number of concurrent invocations.
func (f *FakeFFmpeg) MaxInflight() int {
	return int(f.maxInflight.Load())
}

// Inputs returns the values following each -i flag.
func Inputs(args []string) []string {
	var out []string
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-i" {
			out = append(out, args[i+1])
		}
	}
	return out
}

// IsConcat reports whether args is a concat demuxer invocation.
func IsConcat(args []string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-f" && args[i+1] == "concat" {
			return true
		}
	}
	return false
}

// ManifestEntries parses a concat manifest into file paths.
func ManifestEntries(manifest string) ([]string, error) {
	file, err := os.Open(manifest)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var paths []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quoted, ok := strings.CutPrefix(line, "file '")
		if !ok || !strings.HasSuffix(quoted, "'") {
			return nil, fmt.Errorf("malformed manifest line %q", line)
		}
		paths = append(paths, strings.ReplaceAll(strings.TrimSuffix(quoted, "'"), `'\''`, "'"))
	}
	return paths, scanner.Err()
}

func concatManifest(manifest, output string) error {
	paths, err := ManifestEntries(manifest)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read clip: %w", err)
		}
		buf.Write(data)
	}
	return os.WriteFile(output, buf.Bytes(), 0o644)
}

// Package assemble joins encoded clips into the final project video.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"slidecast/internal/clip"
	"slidecast/internal/config"
	"slidecast/internal/fileutil"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/workspace"
)

// MissingClipError reports a sequence index with no usable clip, or a clip
// set that does not line up with the expected indexes.
type MissingClipError struct {
	SequenceIndex int
	Reason        string
}

func (e *MissingClipError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "clip missing"
	}
	return fmt.Sprintf("slide %d: %s", e.SequenceIndex, reason)
}

func (e *MissingClipError) ErrorKind() string { return "missing_clip" }

// JoinFailedError reports a failed concatenation.
type JoinFailedError struct {
	Cause error
}

func (e *JoinFailedError) Error() string { return fmt.Sprintf("join clips: %v", e.Cause) }

func (e *JoinFailedError) Unwrap() error { return e.Cause }

func (e *JoinFailedError) ErrorKind() string { return "join_failed" }

// Assembler concatenates clips with the concat demuxer.
type Assembler struct {
	run     ffmpeg.Runner
	timeout time.Duration
	logger  *slog.Logger
}

// NewAssembler builds an assembler using the join timeout from cfg.
func NewAssembler(cfg *config.Config, run ffmpeg.Runner, logger *slog.Logger) *Assembler {
	a := &Assembler{run: run, logger: logging.NewComponentLogger(logger, "assemble")}
	if cfg != nil {
		a.timeout = cfg.JoinTimeout()
	}
	return a
}

// Assemble joins clips in ascending sequence order into layout.ResultPath.
// expected lists the sequence indexes the run resolved; every one of them
// must have exactly one non-empty clip. The manifest is removed whether or not
// the join succeeds, and a failed join leaves no result behind.
func (a *Assembler) Assemble(ctx context.Context, clips []clip.Artifact, expected []int, layout workspace.Layout) (string, error) {
	ordered, err := orderClips(clips, expected)
	if err != nil {
		return "", err
	}
	if a.run == nil {
		return "", &JoinFailedError{Cause: errors.New("no ffmpeg runner configured")}
	}

	manifest := layout.ManifestPath()
	if err := writeManifest(manifest, ordered); err != nil {
		return "", &JoinFailedError{Cause: err}
	}
	defer func() {
		if err := os.Remove(manifest); err != nil && !os.IsNotExist(err) {
			logging.WarnWithContext(a.logger, "failed to remove concat manifest", "manifest_cleanup_failed",
				logging.String("path", manifest),
				logging.Error(err),
			)
		}
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, a.logger)
	output := layout.ResultPath()
	started := time.Now()
	if err := a.run(ctx, ffmpeg.ConcatArgs(manifest, output)...); err != nil {
		_ = os.Remove(output)
		attrs := []logging.Attr{logging.Error(err), logging.Int("clips", len(ordered))}
		var exitErr *ffmpeg.ExitError
		if errors.As(err, &exitErr) && exitErr.Tail != "" {
			attrs = append(attrs, logging.String("ffmpeg_stderr", exitErr.Tail))
		}
		logging.ErrorWithContext(logger, "clip join failed", "join_failed", attrs...)
		return "", &JoinFailedError{Cause: err}
	}
	if err := fileutil.RequireNonEmpty(output); err != nil {
		_ = os.Remove(output)
		return "", &JoinFailedError{Cause: err}
	}
	logger.Info("video assembled",
		logging.Int("clips", len(ordered)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return output, nil
}

// orderClips sorts clips by sequence index and checks them against expected.
func orderClips(clips []clip.Artifact, expected []int) ([]clip.Artifact, error) {
	byIndex := make(map[int]clip.Artifact, len(clips))
	for _, c := range clips {
		if _, dup := byIndex[c.SequenceIndex]; dup {
			return nil, &MissingClipError{SequenceIndex: c.SequenceIndex, Reason: "duplicate clip"}
		}
		byIndex[c.SequenceIndex] = c
	}
	want := append([]int(nil), expected...)
	sort.Ints(want)
	ordered := make([]clip.Artifact, 0, len(want))
	for _, idx := range want {
		c, ok := byIndex[idx]
		if !ok {
			return nil, &MissingClipError{SequenceIndex: idx}
		}
		if err := fileutil.RequireNonEmpty(c.Path); err != nil {
			return nil, &MissingClipError{SequenceIndex: idx, Reason: "clip file unusable"}
		}
		ordered = append(ordered, c)
		delete(byIndex, idx)
	}
	for idx := range byIndex {
		return nil, &MissingClipError{SequenceIndex: idx, Reason: "clip not part of this run"}
	}
	return ordered, nil
}

func writeManifest(path string, clips []clip.Artifact) error {
	var buf bytes.Buffer
	for _, c := range clips {
		buf.WriteString(ffmpeg.ManifestLine(c.Path))
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write concat manifest: %w", err)
	}
	return nil
}

// Package clip renders each slide into a standalone video clip whose length
// tracks the slide's narration.
//
// Encoding is fan-out: clips are independent, so EncodeAll runs them through
// a bounded pool and the first failure cancels the rest. The pool still waits
// for in-flight encodes before returning so no ffmpeg process outlives the
// call.
package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/media/ffprobe"
	"slidecast/internal/slides"
	"slidecast/internal/workspace"
)

// Artifact is an encoded clip on disk.
type Artifact struct {
	SequenceIndex int
	Path          string
}

// EncodeFailedError reports a clip that could not be produced.
type EncodeFailedError struct {
	SequenceIndex int
	Cause         error
}

func (e *EncodeFailedError) Error() string {
	return fmt.Sprintf("encode slide %d: %v", e.SequenceIndex, e.Cause)
}

func (e *EncodeFailedError) Unwrap() error { return e.Cause }

func (e *EncodeFailedError) ErrorKind() string { return "encode_failed" }

// Inspector probes an encoded clip.
type Inspector func(ctx context.Context, path string) (ffprobe.Result, error)

// Encoder turns slide descriptors into clips.
type Encoder struct {
	run      ffmpeg.Runner
	inspect  Inspector
	profile  ffmpeg.Profile
	parallel int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option customizes an Encoder.
type Option func(*Encoder)

// WithInspector verifies each clip after encoding.
func WithInspector(inspect Inspector) Option {
	return func(e *Encoder) { e.inspect = inspect }
}

// WithParallelism overrides the pool bound.
func WithParallelism(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.parallel = n
		}
	}
}

// NewEncoder builds an encoder from the encoding section of cfg.
func NewEncoder(cfg *config.Config, run ffmpeg.Runner, logger *slog.Logger, opts ...Option) *Encoder {
	enc := &Encoder{
		run:      run,
		profile:  ProfileFromConfig(cfg),
		parallel: 1,
		logger:   logging.NewComponentLogger(logger, "clip"),
	}
	if cfg != nil {
		enc.parallel = cfg.MaxParallelEncodes()
		enc.timeout = cfg.ClipTimeout()
	}
	for _, opt := range opts {
		opt(enc)
	}
	return enc
}

// ProfileFromConfig maps configured encoding settings onto an ffmpeg profile,
// keeping defaults for unset fields.
func ProfileFromConfig(cfg *config.Config) ffmpeg.Profile {
	p := ffmpeg.DefaultProfile()
	if cfg == nil {
		return p
	}
	enc := cfg.Encoding
	if enc.Width > 0 && enc.Height > 0 {
		p.Width, p.Height = enc.Width, enc.Height
	}
	if enc.PixelFormat != "" {
		p.PixelFormat = enc.PixelFormat
	}
	if enc.VideoCodec != "" {
		p.VideoCodec = enc.VideoCodec
	}
	if enc.AudioCodec != "" {
		p.AudioCodec = enc.AudioCodec
	}
	if enc.CRF > 0 {
		p.CRF = enc.CRF
	}
	if enc.Preset != "" {
		p.Preset = enc.Preset
	}
	return p
}

// Profile returns the output profile clips are encoded to.
func (e *Encoder) Profile() ffmpeg.Profile { return e.profile }

// Encode renders one slide to layout.ClipPath(d.SequenceIndex). A zero-byte
// or missing output is a failure even when ffmpeg exits cleanly.
func (e *Encoder) Encode(ctx context.Context, layout workspace.Layout, d slides.Descriptor) (Artifact, error) {
	if e.run == nil {
		return Artifact{}, &EncodeFailedError{SequenceIndex: d.SequenceIndex, Cause: errors.New("no ffmpeg runner configured")}
	}
	if err := os.MkdirAll(layout.VideosDir(), 0o755); err != nil {
		return Artifact{}, &EncodeFailedError{SequenceIndex: d.SequenceIndex, Cause: fmt.Errorf("create videos dir: %w", err)}
	}
	output := layout.ClipPath(d.SequenceIndex)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, e.logger).With(logging.Int(logging.FieldSequenceIndex, d.SequenceIndex))
	started := time.Now()
	args := ffmpeg.ClipArgs(e.profile, layout.ImagePath(d.ImageRef), layout.AudioPath(d.AudioRef), output)
	if err := e.run(ctx, args...); err != nil {
		_ = os.Remove(output)
		e.logFailure(logger, d, err)
		return Artifact{}, &EncodeFailedError{SequenceIndex: d.SequenceIndex, Cause: err}
	}

	info, err := os.Stat(output)
	switch {
	case err != nil:
		return Artifact{}, &EncodeFailedError{SequenceIndex: d.SequenceIndex, Cause: fmt.Errorf("clip missing after encode: %w", err)}
	case info.Size() == 0:
		_ = os.Remove(output)
		return Artifact{}, &EncodeFailedError{SequenceIndex: d.SequenceIndex, Cause: errors.New("clip is empty")}
	}

	if e.inspect != nil {
		probe, err := e.inspect(ctx, output)
		if err == nil {
			err = probe.Check(ffprobe.Expectation{Width: e.profile.Width, Height: e.profile.Height, PixelFormat: e.profile.PixelFormat})
		}
		if err != nil {
			_ = os.Remove(output)
			return Artifact{}, &EncodeFailedError{SequenceIndex: d.SequenceIndex, Cause: fmt.Errorf("verify clip: %w", err)}
		}
	}

	logger.Debug("clip encoded",
		logging.String("slide_id", d.SlideID),
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Artifact{SequenceIndex: d.SequenceIndex, Path: output}, nil
}

// EncodeAll renders every slide in seq. Artifacts come back in completion
// order; callers that need sequence order sort by SequenceIndex.
func (e *Encoder) EncodeAll(ctx context.Context, layout workspace.Layout, seq slides.Sequence) ([]Artifact, error) {
	var (
		mu        sync.Mutex
		artifacts = make([]Artifact, 0, len(seq))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for _, d := range seq {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &EncodeFailedError{SequenceIndex: d.SequenceIndex, Cause: err}
			}
			artifact, err := e.Encode(gctx, layout, d)
			if err != nil {
				return err
			}
			mu.Lock()
			artifacts = append(artifacts, artifact)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func (e *Encoder) logFailure(logger *slog.Logger, d slides.Descriptor, err error) {
	attrs := []logging.Attr{
		logging.String("slide_id", d.SlideID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the slide image and audio files"),
	}
	var exitErr *ffmpeg.ExitError
	if errors.As(err, &exitErr) && exitErr.Tail != "" {
		attrs = append(attrs, logging.String("ffmpeg_stderr", exitErr.Tail))
	}
	logging.ErrorWithContext(logger, "clip encode failed", "clip_encode_failed", attrs...)
}

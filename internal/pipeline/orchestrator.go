// Package pipeline drives one "build final video" request through its
// states: resolving, encoding, assembling, then done or failed.
//
// The orchestrator owns the run's working directory. Whatever the outcome,
// the per-slide clips and the concat manifest are gone by the time Run
// returns, and result.mp4 exists only after a successful join.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidecast/internal/clip"
	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/notifications"
	"slidecast/internal/services"
	"slidecast/internal/slides"
	"slidecast/internal/store"
	"slidecast/internal/workspace"
)

// ClipEncoder renders a sequence of slides into clips.
type ClipEncoder interface {
	EncodeAll(ctx context.Context, layout workspace.Layout, seq slides.Sequence) ([]clip.Artifact, error)
}

// SequenceAssembler joins clips into the final video.
type SequenceAssembler interface {
	Assemble(ctx context.Context, clips []clip.Artifact, expected []int, layout workspace.Layout) (string, error)
}

// Recorder persists run transitions. *store.Store satisfies it.
type Recorder interface {
	BeginRun(ctx context.Context, runID, userID, projectID string) error
	UpdateRunState(ctx context.Context, runID string, state store.RunState, slideCount int) error
	FinishRun(ctx context.Context, runID string, state store.RunState, errorKind, errorMessage, artifactPath string) error
}

// TitleFunc returns a display title for a project.
type TitleFunc func(ctx context.Context, projectID string) string

// Dependencies bundles the collaborators a run needs. Recorder, Notifier and
// Titles are optional.
type Dependencies struct {
	Resolver  slides.Resolver
	Encoder   ClipEncoder
	Assembler SequenceAssembler
	Recorder  Recorder
	Notifier  notifications.Service
	Titles    TitleFunc
}

// Result describes a successful run.
type Result struct {
	RunID        string
	ArtifactPath string
	Slides       int
	Duration     time.Duration
}

// ActiveRun is a snapshot of an in-flight run.
type ActiveRun struct {
	RunID     string         `json:"run_id"`
	UserID    string         `json:"user_id"`
	ProjectID string         `json:"project_id"`
	State     store.RunState `json:"state"`
	Slides    int            `json:"slides"`
	StartedAt time.Time      `json:"started_at"`
}

type runTimeoutError struct {
	state store.RunState
	cause error
}

func (e *runTimeoutError) Error() string {
	return fmt.Sprintf("run timed out while %s: %v", e.state, e.cause)
}

func (e *runTimeoutError) Unwrap() error { return e.cause }

func (e *runTimeoutError) ErrorKind() string { return services.KindTimeout }

// Orchestrator runs the pipeline for one project at a time per project.
type Orchestrator struct {
	cfg    *config.Config
	deps   Dependencies
	locks  *projectLocks
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*ActiveRun
}

// New constructs an orchestrator.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if deps.Resolver == nil || deps.Encoder == nil || deps.Assembler == nil {
		return nil, errors.New("pipeline: resolver, encoder, and assembler are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		locks:  newProjectLocks(cfg.LockDir()),
		logger: logging.NewComponentLogger(logger, "pipeline"),
		active: make(map[string]*ActiveRun),
	}, nil
}

// Active returns the runs currently in flight, oldest first.
func (o *Orchestrator) Active() []ActiveRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ActiveRun, 0, len(o.active))
	for _, run := range o.active {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Run builds the final video for a project. On success the returned
// ArtifactPath is the project's result.mp4.
func (o *Orchestrator) Run(ctx context.Context, projectID, userID string) (Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithProject(ctx, userID, projectID)
	if timeout := o.cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	run := &ActiveRun{RunID: runID, UserID: userID, ProjectID: projectID, State: store.RunResolving, StartedAt: started}
	o.record(ctx, func(ctx context.Context, r Recorder) error { return r.BeginRun(ctx, runID, userID, projectID) })

	result, err := o.execute(ctx, run)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && services.ErrorKind(err) != services.KindTimeout {
			err = &runTimeoutError{state: o.state(run), cause: err}
		}
		o.fail(ctx, run, err)
		return Result{}, err
	}
	result.RunID = runID
	result.Duration = time.Since(started)
	o.succeed(ctx, run, result)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *ActiveRun) (Result, error) {
	logger := logging.WithContext(ctx, o.logger)
	stageCtx := services.WithStage(ctx, string(store.RunResolving))

	layout, err := workspace.For(o.cfg.Paths.ProjectsDir, run.UserID, run.ProjectID)
	if err != nil {
		return Result{}, err
	}
	seq, err := o.deps.Resolver.ResolveSlides(stageCtx, run.ProjectID, run.UserID)
	if err != nil {
		return Result{}, err
	}
	if err := slides.Validate(seq); err != nil {
		return Result{}, err
	}
	seq = slides.Sorted(seq)
	if err := checkInputs(layout, seq); err != nil {
		return Result{}, err
	}

	release, err := o.locks.acquire(run.UserID, run.ProjectID)
	if err != nil {
		return Result{}, err
	}
	defer release()
	o.track(run, len(seq))
	defer o.untrack(run.RunID)
	logger.Info("slides resolved", logging.Int("slides", len(seq)))

	if err := os.Remove(layout.ResultPath()); err != nil && !os.IsNotExist(err) {
		return Result{}, services.Wrap(services.ErrExternalTool, "encoding", "clear result", "could not remove previous video", err)
	}
	if err := os.RemoveAll(layout.VideosDir()); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "encoding", "reset videos", "could not reset working directory", err)
	}
	defer o.cleanup(ctx, layout)

	o.transition(ctx, run, store.RunEncoding, len(seq))
	clips, err := o.deps.Encoder.EncodeAll(services.WithStage(ctx, string(store.RunEncoding)), layout, seq)
	if err != nil {
		return Result{}, err
	}

	o.transition(ctx, run, store.RunAssembling, len(seq))
	artifact, err := o.deps.Assembler.Assemble(services.WithStage(ctx, string(store.RunAssembling)), clips, seq.Indexes(), layout)
	if err != nil {
		return Result{}, err
	}
	return Result{ArtifactPath: artifact, Slides: len(seq)}, nil
}

// checkInputs confirms every referenced media file exists before any side
// effect.
func checkInputs(layout workspace.Layout, seq slides.Sequence) error {
	var missing []string
	for _, d := range seq {
		for _, path := range []string{layout.ImagePath(d.ImageRef), layout.AudioPath(d.AudioRef)} {
			if info, err := os.Stat(path); err != nil || info.IsDir() {
				missing = append(missing, d.SlideID)
				break
			}
		}
	}
	if len(missing) > 0 {
		return &slides.IncompleteMediaError{SlideIDs: missing, Reason: "media file missing"}
	}
	return nil
}

func (o *Orchestrator) cleanup(ctx context.Context, layout workspace.Layout) {
	logger := logging.WithContext(ctx, o.logger)
	for _, path := range []string{layout.VideosDir(), layout.ManifestPath()} {
		if err := os.RemoveAll(path); err != nil {
			logging.WarnWithContext(logger, "failed to remove run intermediates", "run_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "stale cleanup at daemon start will retry"),
				logging.String(logging.FieldImpact, "intermediate files left on disk"),
			)
		}
	}
}

func (o *Orchestrator) transition(ctx context.Context, run *ActiveRun, state store.RunState, slideCount int) {
	o.mu.Lock()
	run.State = state
	o.mu.Unlock()
	logging.WithContext(ctx, o.logger).Info("stage started",
		logging.String(logging.FieldStage, string(state)),
		logging.Int("slides", slideCount),
	)
	o.record(ctx, func(ctx context.Context, r Recorder) error {
		return r.UpdateRunState(ctx, run.RunID, state, slideCount)
	})
}

func (o *Orchestrator) succeed(ctx context.Context, run *ActiveRun, result Result) {
	logging.WithContext(ctx, o.logger).Info("video ready",
		logging.String(logging.FieldStage, string(store.RunDone)),
		logging.Int("slides", result.Slides),
		logging.Duration("elapsed", result.Duration),
		logging.String(logging.FieldEventType, "run_completed"),
	)
	o.record(ctx, func(ctx context.Context, r Recorder) error {
		return r.FinishRun(ctx, run.RunID, store.RunDone, "", "", result.ArtifactPath)
	})
	o.notify(ctx, func(ctx context.Context, n notifications.Service) error {
		return n.NotifyRunCompleted(ctx, o.title(ctx, run.ProjectID), result.Slides, result.Duration)
	})
}

func (o *Orchestrator) fail(ctx context.Context, run *ActiveRun, err error) {
	kind := services.ErrorKind(err)
	outcome := services.Classify(err)
	if kind == "" {
		kind = outcome.Kind
	}
	logger := logging.WithContext(ctx, o.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldStage, string(o.state(run))),
		logging.String("error_kind", kind),
		logging.Error(err),
		logging.Alert("run_failure"),
	}
	if outcome.Kind == services.KindServerError {
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			append(attrs, logging.String(logging.FieldErrorHint, "inspect ffmpeg_stderr in earlier log lines"))...)
	} else {
		logger.Warn("run rejected", logging.Args(append(attrs, logging.String(logging.FieldEventType, "run_rejected"))...)...)
	}
	o.record(ctx, func(ctx context.Context, r Recorder) error {
		return r.FinishRun(ctx, run.RunID, store.RunFailed, kind, err.Error(), "")
	})
	if errors.Is(err, ErrRunInProgress) {
		return
	}
	o.notify(ctx, func(ctx context.Context, n notifications.Service) error {
		return n.NotifyRunFailed(ctx, o.title(ctx, run.ProjectID), outcome.Kind)
	})
}

// record reports to the Recorder on a context that survives run
// cancellation, so the terminal outcome lands even after a timeout.
func (o *Orchestrator) record(ctx context.Context, fn func(context.Context, Recorder) error) {
	if o.deps.Recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), o.deps.Recorder); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "run ledger update failed", "run_ledger_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and database health"),
			logging.String(logging.FieldImpact, "run history incomplete"),
		)
	}
}

func (o *Orchestrator) notify(ctx context.Context, fn func(context.Context, notifications.Service) error) {
	if err := fn(context.WithoutCancel(ctx), o.deps.Notifier); err != nil {
		logging.WithContext(ctx, o.logger).Debug("run notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) title(ctx context.Context, projectID string) string {
	if o.deps.Titles != nil {
		if title := o.deps.Titles(ctx, projectID); title != "" {
			return title
		}
	}
	return projectID
}

func (o *Orchestrator) track(run *ActiveRun, count int) {
	o.mu.Lock()
	run.Slides = count
	o.active[run.RunID] = run
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(runID string) {
	o.mu.Lock()
	delete(o.active, runID)
	o.mu.Unlock()
}

func (o *Orchestrator) state(run *ActiveRun) store.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return run.State
}

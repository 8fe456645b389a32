package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"slidecast/internal/config"
	"slidecast/internal/deps"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/pipeline"
	"slidecast/internal/preflight"
	"slidecast/internal/store"
	"slidecast/internal/workspace"
)

// Daemon owns the serve-mode lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	engine *ffmpeg.Engine
	orch   *pipeline.Orchestrator
	hub    *logging.StreamHub

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	api       *apiServer
	startedAt time.Time
	running   atomic.Bool
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	DatabasePath string
	LockFilePath string
	Engine       EngineStatus
	Dependencies []deps.Status
	ActiveRuns   []pipeline.ActiveRun
	RunCounts    map[store.RunState]int
}

// EngineStatus reports the ffmpeg engine.
type EngineStatus struct {
	Binary  string
	Version string
	Healthy bool
	Running int
	Detail  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, engine *ffmpeg.Engine, orch *pipeline.Orchestrator, hub *logging.StreamHub, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || engine == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, engine, and orchestrator")
	}
	lockPath := cfg.DaemonLockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		engine:   engine,
		orch:     orch,
		hub:      hub,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, reconciles state left by a previous
// process, starts the engine, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another slidecast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.reconcile(runCtx)

	if err := d.engine.Start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "ffmpeg engine unavailable", "engine_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set encoding.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "video builds will fail until ffmpeg is available"),
		)
	}
	d.logPreflight(runCtx)

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("configure api: %w", err)
	}
	if err := srv.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.mu.Lock()
	d.api = srv
	d.cancel = cancel
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("slidecast daemon started", logging.String("lock", d.lockPath), logging.String("address", srv.address()))
	return nil
}

// reconcile marks runs orphaned by a crash and removes their intermediates.
func (d *Daemon) reconcile(ctx context.Context) {
	if n, err := d.store.MarkInterrupted(ctx); err != nil {
		logging.WarnWithContext(d.logger, "could not reconcile unfinished runs", "run_reconcile_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history may show stale in-progress entries"),
		)
	} else if n > 0 {
		d.logger.Info("marked interrupted runs", logging.Int64("runs", n), logging.String(logging.FieldEventType, "runs_interrupted"))
	}

	maxAge := 2 * d.cfg.RunTimeout()
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	result := workspace.CleanStale(ctx, d.cfg.Paths.ProjectsDir, maxAge, d.logger)
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		d.logger.Info("stale intermediate cleanup finished",
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
}

func (d *Daemon) logPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run `slidecast status` for the full report"),
		)
	}
	d.logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
		logging.String("missing_dependencies", strings.Join(deps.Missing(preflight.CheckSystemDeps(d.cfg)), ",")),
		logging.String("ffmpeg_binary", d.engine.Binary()),
		logging.String("ffmpeg_version", d.engine.Version()),
		logging.Int("max_parallel", d.cfg.MaxParallelEncodes()),
	)
}

// Stop stops the API, terminates in-flight encodes, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.mu.Lock()
	srv, cancel := d.api, d.cancel
	d.api, d.cancel = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	srv.stop()
	if err := d.engine.Close(); err != nil {
		d.logger.Warn("failed to stop ffmpeg engine", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("slidecast daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Address returns the API listen address once started.
func (d *Daemon) Address() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.address()
}

// LogStream returns the in-memory log hub, if configured.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()

	engine := EngineStatus{Binary: d.engine.Binary(), Version: d.engine.Version(), Running: d.engine.Running()}
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.engine.HealthCheck(healthCtx); err != nil {
		engine.Detail = err.Error()
	} else {
		engine.Healthy = true
	}

	counts, err := d.store.RunStats(ctx)
	if err != nil {
		d.logger.Warn("run stats unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    startedAt,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Engine:       engine,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
		ActiveRuns:   d.orch.Active(),
		RunCounts:    counts,
	}
}

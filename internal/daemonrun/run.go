// Package daemonrun wires the runtime components for `slidecast serve` and
// `slidecast build` and owns the serve-mode process loop.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"slidecast/internal/assemble"
	"slidecast/internal/clip"
	"slidecast/internal/config"
	"slidecast/internal/daemon"
	"slidecast/internal/deps"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/media/ffprobe"
	"slidecast/internal/notifications"
	"slidecast/internal/pipeline"
	"slidecast/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Components is the wired pipeline shared by serve and build.
type Components struct {
	Store        *store.Store
	Engine       *ffmpeg.Engine
	Orchestrator *pipeline.Orchestrator
}

// NewComponents opens the store, starts the ffmpeg engine, and builds an
// orchestrator around them. Close releases everything.
func NewComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine := ffmpeg.NewEngine(cfg.Encoding.FFmpegBinary, logger)
	if err := engine.Start(ctx); err != nil {
		logging.WarnWithContext(logger, "ffmpeg engine unavailable", "engine_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set encoding.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "video builds will fail until ffmpeg is available"),
		)
	}

	var encOpts []clip.Option
	if cfg.Encoding.VerifyClips {
		probe := deps.ResolveFFprobePath(cfg.Encoding.FFprobeBinary, engine.Binary())
		encOpts = append(encOpts, clip.WithInspector(func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, probe, path)
		}))
	}

	orch, err := pipeline.New(cfg, pipeline.Dependencies{
		Resolver:  st,
		Encoder:   clip.NewEncoder(cfg, engine.Run, logger, encOpts...),
		Assembler: assemble.NewAssembler(cfg, engine.Run, logger),
		Recorder:  st,
		Notifier:  notifications.NewService(cfg),
		Titles: func(ctx context.Context, projectID string) string {
			if project, err := st.GetProject(ctx, projectID); err == nil {
				return project.Title
			}
			return ""
		},
	}, logger)
	if err != nil {
		_ = engine.Close()
		_ = st.Close()
		return nil, err
	}
	return &Components{Store: st, Engine: engine, Orchestrator: orch}, nil
}

// Close stops the engine and closes the store.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	engineErr := c.Engine.Close()
	return errors.Join(engineErr, c.Store.Close())
}

// Run starts the slidecast daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logHub := logging.NewStreamHub(4096)
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "slidecast.log")},
		Development: opts.Development,
		Stream:      logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.StateDir, "slidecast.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	components, err := NewComponents(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("initialize runtime", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, components.Store, components.Engine, components.Orchestrator, logHub, logger)
	if err != nil {
		_ = components.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("slidecast daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

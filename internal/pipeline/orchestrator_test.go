package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slidecast/internal/assemble"
	"slidecast/internal/clip"
	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/pipeline"
	"slidecast/internal/services"
	"slidecast/internal/store"
	"slidecast/internal/testsupport"
	"slidecast/internal/workspace"
)

const testUser = "user-1"

type harness struct {
	cfg     *config.Config
	store   *store.Store
	project *store.Project
	layout  workspace.Layout
	fake    *testsupport.FakeFFmpeg
	orch    *pipeline.Orchestrator
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	run        func(fake *testsupport.FakeFFmpeg) ffmpeg.Runner
	assembler  func(inner pipeline.SequenceAssembler, layout workspace.Layout) pipeline.SequenceAssembler
	runTimeout int
}

func withRunner(fn func(fake *testsupport.FakeFFmpeg) ffmpeg.Runner) harnessOption {
	return func(c *harnessConfig) { c.run = fn }
}

func withAssembler(fn func(inner pipeline.SequenceAssembler, layout workspace.Layout) pipeline.SequenceAssembler) harnessOption {
	return func(c *harnessConfig) { c.assembler = fn }
}

func withRunTimeout(seconds int) harnessOption {
	return func(c *harnessConfig) { c.runTimeout = seconds }
}

func newHarness(t *testing.T, slideCount int, fake *testsupport.FakeFFmpeg, opts ...harnessOption) *harness {
	t.Helper()
	hc := harnessConfig{run: func(f *testsupport.FakeFFmpeg) ffmpeg.Runner { return f.Run }}
	for _, opt := range opts {
		opt(&hc)
	}
	cfg := testsupport.NewConfig(t, testsupport.WithMaxParallel(3))
	if hc.runTimeout > 0 {
		cfg.Encoding.RunTimeoutSeconds = hc.runTimeout
	}
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.SeedProject(t, cfg, st, testUser, slideCount)
	layout, err := workspace.For(cfg.Paths.ProjectsDir, testUser, project.ID)
	if err != nil {
		t.Fatalf("workspace.For: %v", err)
	}
	if fake == nil {
		fake = &testsupport.FakeFFmpeg{}
	}
	runner := hc.run(fake)
	var asm pipeline.SequenceAssembler = assemble.NewAssembler(cfg, runner, logging.NewNop())
	if hc.assembler != nil {
		asm = hc.assembler(asm, layout)
	}
	orch, err := pipeline.New(cfg, pipeline.Dependencies{
		Resolver:  st,
		Encoder:   clip.NewEncoder(cfg, runner, logging.NewNop()),
		Assembler: asm,
		Recorder:  st,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &harness{cfg: cfg, store: st, project: project, layout: layout, fake: fake, orch: orch}
}

func (h *harness) assertNoIntermediates(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(h.layout.VideosDir()); !os.IsNotExist(err) {
		t.Fatalf("videos dir should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(h.layout.ManifestPath()); !os.IsNotExist(err) {
		t.Fatalf("manifest should be removed, stat err=%v", err)
	}
}

func (h *harness) assertNoResult(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(h.layout.ResultPath()); !os.IsNotExist(err) {
		t.Fatalf("result.mp4 should not exist, stat err=%v", err)
	}
}

func TestRunJoinsInDeclaredOrderRegardlessOfCompletion(t *testing.T) {
	// Lower indexes finish last.
	slow := withRunner(func(f *testsupport.FakeFFmpeg) ffmpeg.Runner {
		return func(ctx context.Context, args ...string) error {
			if !testsupport.IsConcat(args) {
				var idx int
				fmt.Sscanf(filepath.Base(args[len(args)-1]), "video-%d.mp4", &idx)
				time.Sleep(time.Duration(6-idx) * 15 * time.Millisecond)
			}
			return f.Run(ctx, args...)
		}
	})
	h := newHarness(t, 5, nil, slow)

	result, err := h.orch.Run(context.Background(), h.project.ID, testUser)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Slides != 5 || result.ArtifactPath != h.layout.ResultPath() || result.RunID == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	data, err := os.ReadFile(result.ArtifactPath)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	last := -1
	for i := 1; i <= 5; i++ {
		pos := bytes.Index(data, []byte(fmt.Sprintf("[slide-%d.png:", i)))
		if pos <= last {
			t.Fatalf("slide %d out of order in result", i)
		}
		last = pos
	}
	h.assertNoIntermediates(t)

	record, err := h.store.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if record.State != store.RunDone || record.ArtifactPath != result.ArtifactPath || record.SlideCount != 5 {
		t.Fatalf("unexpected run record %+v", record)
	}
	if len(h.orch.Active()) != 0 {
		t.Fatal("no runs should remain active")
	}
}

func TestRunRejectsMissingMediaWithoutEncoding(t *testing.T) {
	h := newHarness(t, 3, nil)
	if err := os.Remove(h.layout.AudioPath("slide-2.mp3")); err != nil {
		t.Fatal(err)
	}

	_, err := h.orch.Run(context.Background(), h.project.ID, testUser)
	if services.ErrorKind(err) != services.KindIncompleteMedia {
		t.Fatalf("expected incomplete_media, got %v", err)
	}
	if outcome := services.Classify(err); outcome.Status != 400 {
		t.Fatalf("expected 400, got %d", outcome.Status)
	}
	if n := len(h.fake.Calls()); n != 0 {
		t.Fatalf("encoder must not run, saw %d calls", n)
	}
	h.assertNoIntermediates(t)
}

func TestRunEncodeFailureLeavesNothingBehind(t *testing.T) {
	fake := &testsupport.FakeFFmpeg{FailWhen: func(args []string) error {
		if strings.HasSuffix(args[len(args)-1], "video-3.mp4") {
			return &ffmpeg.ExitError{Args: args, Tail: "Invalid data found when processing input", Err: errors.New("exit status 1")}
		}
		return nil
	}}
	h := newHarness(t, 5, fake)
	testsupport.WriteFile(t, h.layout.ResultPath(), 32)

	_, err := h.orch.Run(context.Background(), h.project.ID, testUser)
	var encErr *clip.EncodeFailedError
	if !errors.As(err, &encErr) || encErr.SequenceIndex != 3 {
		t.Fatalf("expected encode failure for slide 3, got %v", err)
	}
	outcome := services.Classify(err)
	if outcome.Status != 500 || strings.Contains(outcome.Message, "Invalid data") {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	h.assertNoResult(t)
	h.assertNoIntermediates(t)
}

type deletingAssembler struct {
	inner pipeline.SequenceAssembler
	path  string
}

func (d deletingAssembler) Assemble(ctx context.Context, clips []clip.Artifact, expected []int, layout workspace.Layout) (string, error) {
	_ = os.Remove(d.path)
	return d.inner.Assemble(ctx, clips, expected, layout)
}

func TestRunMissingClipBeforeAssembly(t *testing.T) {
	h := newHarness(t, 4, nil, withAssembler(func(inner pipeline.SequenceAssembler, layout workspace.Layout) pipeline.SequenceAssembler {
		return deletingAssembler{inner: inner, path: layout.ClipPath(2)}
	}))

	_, err := h.orch.Run(context.Background(), h.project.ID, testUser)
	var missing *assemble.MissingClipError
	if !errors.As(err, &missing) || missing.SequenceIndex != 2 {
		t.Fatalf("expected missing clip 2, got %v", err)
	}
	h.assertNoResult(t)
	h.assertNoIntermediates(t)
}

func TestRunIsDeterministicAcrossRuns(t *testing.T) {
	h := newHarness(t, 3, nil)

	first, err := h.orch.Run(context.Background(), h.project.ID, testUser)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstBytes, err := os.ReadFile(first.ArtifactPath)
	if err != nil {
		t.Fatal(err)
	}
	h.assertNoIntermediates(t)

	second, err := h.orch.Run(context.Background(), h.project.ID, testUser)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	secondBytes, err := os.ReadFile(second.ArtifactPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Fatal("identical inputs should produce identical output")
	}
	if first.RunID == second.RunID {
		t.Fatal("each run needs its own id")
	}
	h.assertNoIntermediates(t)
}

func TestRunRejectsConcurrentRunForSameProject(t *testing.T) {
	h := newHarness(t, 3, &testsupport.FakeFFmpeg{Delay: 150 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Run(context.Background(), h.project.ID, testUser)
		done <- err
	}()
	deadline := time.Now().Add(5 * time.Second)
	for len(h.orch.Active()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first run never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := h.orch.Run(context.Background(), h.project.ID, testUser)
	if !errors.Is(err, pipeline.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if outcome := services.Classify(err); outcome.Status != 409 {
		t.Fatalf("expected 409, got %d", outcome.Status)
	}

	if err := <-done; err != nil {
		t.Fatalf("first run should be unaffected, got %v", err)
	}
	if _, err := os.Stat(h.layout.ResultPath()); err != nil {
		t.Fatalf("first run should have produced a result: %v", err)
	}
}

func TestRunTimeoutCleansUp(t *testing.T) {
	h := newHarness(t, 2, &testsupport.FakeFFmpeg{Delay: 10 * time.Second}, withRunTimeout(1))

	started := time.Now()
	_, err := h.orch.Run(context.Background(), h.project.ID, testUser)
	if services.ErrorKind(err) != services.KindTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if outcome := services.Classify(err); outcome.Status != 504 {
		t.Fatalf("expected 504, got %d", outcome.Status)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatal("run did not stop at its timeout")
	}
	h.assertNoIntermediates(t)
	h.assertNoResult(t)
}

func TestRunUnknownProjectIsNotFound(t *testing.T) {
	h := newHarness(t, 1, nil)

	_, err := h.orch.Run(context.Background(), h.project.ID, "someone-else")
	if services.Classify(err).Status != 404 {
		t.Fatalf("expected not found for foreign project, got %v", err)
	}
	_, err = h.orch.Run(context.Background(), "missing-project", testUser)
	if services.Classify(err).Status != 404 {
		t.Fatalf("expected not found for unknown project, got %v", err)
	}
}

func TestRunRejectsUnsafeIdentifiers(t *testing.T) {
	h := newHarness(t, 1, nil)

	_, err := h.orch.Run(context.Background(), "../escape", testUser)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

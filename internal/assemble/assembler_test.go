package assemble_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"slidecast/internal/assemble"
	"slidecast/internal/clip"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/testsupport"
	"slidecast/internal/workspace"
)

func writeClips(t *testing.T, layout workspace.Layout, indexes ...int) []clip.Artifact {
	t.Helper()
	out := make([]clip.Artifact, 0, len(indexes))
	for _, idx := range indexes {
		path := layout.ClipPath(idx)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte{byte('0' + idx)}, 0o644); err != nil {
			t.Fatal(err)
		}
		out = append(out, clip.Artifact{SequenceIndex: idx, Path: path})
	}
	return out
}

func newLayout(t *testing.T) workspace.Layout {
	t.Helper()
	layout := workspace.Layout{ProjectDir: filepath.Join(t.TempDir(), "u1", "p1")}
	if err := os.MkdirAll(layout.ProjectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return layout
}

func TestAssembleJoinsInSequenceOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	layout := newLayout(t)
	clips := writeClips(t, layout, 3, 1, 2)

	var manifest []string
	fake := &testsupport.FakeFFmpeg{}
	run := func(ctx context.Context, args ...string) error {
		entries, err := testsupport.ManifestEntries(testsupport.Inputs(args)[0])
		if err != nil {
			return err
		}
		manifest = entries
		return fake.Run(ctx, args...)
	}

	out, err := assemble.NewAssembler(cfg, run, logging.NewNop()).Assemble(context.Background(), clips, []int{1, 2, 3}, layout)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []string{layout.ClipPath(1), layout.ClipPath(2), layout.ClipPath(3)}
	if !slices.Equal(manifest, want) {
		t.Fatalf("manifest order %v, want %v", manifest, want)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "123" {
		t.Fatalf("unexpected result contents %q", data)
	}
	if _, err := os.Stat(layout.ManifestPath()); !os.IsNotExist(err) {
		t.Fatal("manifest should be removed after join")
	}
}

func TestAssembleRejectsMissingClip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	layout := newLayout(t)
	clips := writeClips(t, layout, 1, 3)
	fake := &testsupport.FakeFFmpeg{}

	_, err := assemble.NewAssembler(cfg, fake.Run, logging.NewNop()).Assemble(context.Background(), clips, []int{1, 2, 3}, layout)
	var missing *assemble.MissingClipError
	if !errors.As(err, &missing) || missing.SequenceIndex != 2 {
		t.Fatalf("expected missing clip 2, got %v", err)
	}
	if services.ErrorKind(err) != "missing_clip" {
		t.Fatalf("unexpected kind %q", services.ErrorKind(err))
	}
	if len(fake.Calls()) != 0 {
		t.Fatal("ffmpeg must not run when clips are missing")
	}
}

func TestAssembleRejectsDuplicateAndStrayClips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	layout := newLayout(t)
	fake := &testsupport.FakeFFmpeg{}
	asm := assemble.NewAssembler(cfg, fake.Run, logging.NewNop())

	dup := writeClips(t, layout, 1, 2)
	dup = append(dup, dup[1])
	if _, err := asm.Assemble(context.Background(), dup, []int{1, 2}, layout); services.ErrorKind(err) != "missing_clip" {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}

	stray := writeClips(t, layout, 1, 2, 7)
	if _, err := asm.Assemble(context.Background(), stray, []int{1, 2}, layout); services.ErrorKind(err) != "missing_clip" {
		t.Fatalf("expected stray clip to be rejected, got %v", err)
	}
}

func TestAssembleRejectsEmptyClip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	layout := newLayout(t)
	clips := writeClips(t, layout, 1)
	if err := os.WriteFile(clips[0].Path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	fake := &testsupport.FakeFFmpeg{}
	if _, err := assemble.NewAssembler(cfg, fake.Run, logging.NewNop()).Assemble(context.Background(), clips, []int{1}, layout); services.ErrorKind(err) != "missing_clip" {
		t.Fatalf("expected empty clip to be rejected, got %v", err)
	}
}

func TestAssembleFailureLeavesNoResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	layout := newLayout(t)
	clips := writeClips(t, layout, 1, 2)
	boom := errors.New("concat failed")
	run := func(ctx context.Context, args ...string) error {
		_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
		return boom
	}

	_, err := assemble.NewAssembler(cfg, run, logging.NewNop()).Assemble(context.Background(), clips, []int{1, 2}, layout)
	var joinErr *assemble.JoinFailedError
	if !errors.As(err, &joinErr) || !errors.Is(err, boom) {
		t.Fatalf("expected JoinFailedError wrapping cause, got %v", err)
	}
	if _, err := os.Stat(layout.ResultPath()); !os.IsNotExist(err) {
		t.Fatal("partial result should be removed")
	}
	if _, err := os.Stat(layout.ManifestPath()); !os.IsNotExist(err) {
		t.Fatal("manifest should be removed after a failed join")
	}
}

func TestManifestEscapesQuotes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	layout := workspace.Layout{ProjectDir: filepath.Join(t.TempDir(), "it's", "p1")}
	if err := os.MkdirAll(layout.ProjectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	clips := writeClips(t, layout, 1)
	fake := &testsupport.FakeFFmpeg{}
	if _, err := assemble.NewAssembler(cfg, fake.Run, logging.NewNop()).Assemble(context.Background(), clips, []int{1}, layout); err != nil {
		t.Fatalf("Assemble with quoted path: %v", err)
	}
}

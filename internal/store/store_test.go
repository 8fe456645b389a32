package store_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"slidecast/internal/services"
	"slidecast/internal/slides"
	"slidecast/internal/store"
	"slidecast/internal/testsupport"
)

func TestResolveSlidesFollowsDeclaredOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.SeedProject(t, cfg, st, "user-1", 3)
	reversed := []string{project.SlideSequence[2], project.SlideSequence[0], project.SlideSequence[1]}
	if err := st.SetSlideSequence(ctx, project.ID, reversed); err != nil {
		t.Fatalf("SetSlideSequence: %v", err)
	}

	seq, err := st.ResolveSlides(ctx, project.ID, "user-1")
	if err != nil {
		t.Fatalf("ResolveSlides: %v", err)
	}
	if len(seq) != 3 {
		t.Fatalf("expected 3 slides, got %d", len(seq))
	}
	for i, d := range seq {
		if d.SequenceIndex != i+1 {
			t.Fatalf("slide %d has index %d", i, d.SequenceIndex)
		}
		if d.SlideID != reversed[i] {
			t.Fatalf("position %d: got slide %s want %s", i+1, d.SlideID, reversed[i])
		}
	}
	if seq[0].ImageRef != "slide-3.png" || seq[0].AudioRef != "slide-3.mp3" {
		t.Fatalf("unexpected refs for first slide: %+v", seq[0])
	}
}

func TestResolveSlidesRejectsIncompleteMedia(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.SeedProject(t, cfg, st, "user-1", 2)
	broken, err := st.AddSlide(ctx, project.ID, "slide-3.png", "")
	if err != nil {
		t.Fatalf("AddSlide: %v", err)
	}

	_, err = st.ResolveSlides(ctx, project.ID, "user-1")
	var incomplete *slides.IncompleteMediaError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteMediaError, got %v", err)
	}
	if len(incomplete.SlideIDs) != 1 || incomplete.SlideIDs[0] != broken.ID {
		t.Fatalf("unexpected incomplete slides %v", incomplete.SlideIDs)
	}
}

func TestResolveSlidesHidesForeignProjects(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.SeedProject(t, cfg, st, "owner", 1)
	if _, err := st.ResolveSlides(ctx, project.ID, "someone-else"); !errors.Is(err, slides.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound for wrong author, got %v", err)
	}
	if _, err := st.ResolveSlides(ctx, "missing", "owner"); !errors.Is(err, slides.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound for unknown project, got %v", err)
	}
}

func TestSetSlideSequenceValidatesIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.SeedProject(t, cfg, st, "user-1", 2)
	err := st.SetSlideSequence(ctx, project.ID, []string{project.SlideSequence[0], "stranger"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for foreign slide, got %v", err)
	}
	err = st.SetSlideSequence(ctx, project.ID, []string{project.SlideSequence[0], project.SlideSequence[0]})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for duplicate slide, got %v", err)
	}

	fetched, err := st.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if strings.Join(fetched.SlideSequence, ",") != strings.Join(project.SlideSequence, ",") {
		t.Fatalf("rejected update must not change the sequence, got %v", fetched.SlideSequence)
	}
}

func TestResolveSlidesSubsetSequence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.SeedProject(t, cfg, st, "user-1", 3)
	if err := st.SetSlideSequence(ctx, project.ID, []string{project.SlideSequence[1]}); err != nil {
		t.Fatalf("SetSlideSequence: %v", err)
	}
	seq, err := st.ResolveSlides(ctx, project.ID, "user-1")
	if err != nil {
		t.Fatalf("ResolveSlides: %v", err)
	}
	if len(seq) != 1 || seq[0].SlideID != project.SlideSequence[1] || seq[0].SequenceIndex != 1 {
		t.Fatalf("unexpected sequence %+v", seq)
	}
}

func TestRunLedgerLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.BeginRun(ctx, "run-1", "user-1", "proj-1"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := st.UpdateRunState(ctx, "run-1", store.RunEncoding, 4); err != nil {
		t.Fatalf("UpdateRunState: %v", err)
	}
	if err := st.FinishRun(ctx, "run-1", store.RunDone, "", "", "/tmp/result.mp4"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := st.FinishRun(ctx, "run-1", store.RunFailed, "join_failed", "late", ""); err == nil {
		t.Fatal("expected second FinishRun to be rejected")
	}
	if err := st.FinishRun(ctx, "run-1", store.RunEncoding, "", "", ""); err == nil {
		t.Fatal("expected non-terminal state to be rejected")
	}

	record, err := st.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if record.State != store.RunDone || record.SlideCount != 4 || record.ArtifactPath != "/tmp/result.mp4" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.FinishedAt == nil || record.Duration() < 0 {
		t.Fatalf("expected finished timestamp, got %+v", record)
	}

	if _, err := st.GetRun(ctx, "missing"); !errors.Is(err, store.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunsAndMarkInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		project := "proj-1"
		if id == "c" {
			project = "proj-2"
		}
		if err := st.BeginRun(ctx, id, "user-1", project); err != nil {
			t.Fatalf("BeginRun %s: %v", id, err)
		}
	}
	if err := st.FinishRun(ctx, "a", store.RunFailed, "encode_failed", "clip 3", ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := st.ListRuns(ctx, "proj-1", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs for proj-1, got %d", len(runs))
	}

	n, err := st.MarkInterrupted(ctx)
	if err != nil {
		t.Fatalf("MarkInterrupted: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 interrupted runs, got %d", n)
	}
	stats, err := st.RunStats(ctx)
	if err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	if stats[store.RunFailed] != 3 {
		t.Fatalf("expected all runs failed, got %v", stats)
	}
	record, err := st.GetRun(ctx, "b")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if record.ErrorKind != "interrupted" {
		t.Fatalf("expected interrupted kind, got %q", record.ErrorKind)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	st.Close()

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := store.Open(cfg); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

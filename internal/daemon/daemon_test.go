package daemon

import (
	"context"
	"testing"

	"slidecast/internal/store"
	"slidecast/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, testsupport.WithStubbedBinaries())
	if err := f.store.BeginRun(context.Background(), "orphan", "u1", "p1"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if f.daemon.Address() == "" {
		t.Fatal("expected a listen address")
	}

	status := f.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}

	orphan, err := f.store.GetRun(ctx, "orphan")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if orphan.State != store.RunFailed || orphan.ErrorKind != "interrupted" {
		t.Fatalf("expected orphaned run to be marked interrupted, got %+v", orphan)
	}

	// Second start should fail
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondDaemonIsRejected(t *testing.T) {
	f := newFixture(t, testsupport.WithStubbedBinaries())
	ctx := context.Background()
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.daemon.Stop()

	other, err := New(f.cfg, f.store, f.daemon.engine, f.daemon.orch, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected lock conflict")
	}
}

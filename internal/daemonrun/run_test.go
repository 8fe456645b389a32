package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/testsupport"
)

func TestNewComponentsWiresStubbedEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	components, err := NewComponents(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewComponents: %v", err)
	}
	defer components.Close()

	project := testsupport.SeedProject(t, cfg, components.Store, "u1", 1)

	// The stub ffmpeg exits cleanly without writing anything.
	_, err = components.Orchestrator.Run(context.Background(), project.ID, "u1")
	if services.ErrorKind(err) != "encode_failed" {
		t.Fatalf("expected encode_failed from empty stub output, got %v", err)
	}
	if !strings.Contains(err.Error(), "clip missing") {
		t.Fatalf("expected missing clip cause, got %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slidecast.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) == "" {
		t.Fatal("expected pid contents")
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}
}

package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"slidecast/internal/config"
	"slidecast/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedProject creates a project with n complete slides and writes their
// media files under the project directory. Slide i uses image
// slide-i.png and audio slide-i.mp3.
func SeedProject(t testing.TB, cfg *config.Config, st *store.Store, userID string, n int) *store.Project {
	t.Helper()

	ctx := context.Background()
	project, err := st.CreateProject(ctx, userID, "Test Project")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	projectDir := filepath.Join(cfg.Paths.ProjectsDir, userID, project.ID)
	for i := 1; i <= n; i++ {
		image := fmt.Sprintf("slide-%d.png", i)
		audio := fmt.Sprintf("slide-%d.mp3", i)
		WriteFile(t, filepath.Join(projectDir, "compressedImages", image), 64)
		WriteFile(t, filepath.Join(projectDir, "audios", audio), 64)
		if _, err := st.AddSlide(ctx, project.ID, image, audio); err != nil {
			t.Fatalf("AddSlide %d: %v", i, err)
		}
	}
	project, err = st.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	return project
}

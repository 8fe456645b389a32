package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"slidecast/internal/api"
	"slidecast/internal/workspace"
)

func TestBuildLocalRendersAndCopiesVideo(t *testing.T) {
	env := setupCLITestEnv(t)
	projectID := createProject(t, env, "user-1", "Launch Deck")
	addSlide(t, env, projectID, 1)
	addSlide(t, env, projectID, 2)

	target := filepath.Join(t.TempDir(), "out", "launch.mp4")
	out, _, err := runCLI(t, []string{"build", "--user", "user-1", "--project", projectID, "--output", target}, env.configPath)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	requireContains(t, out, "Rendered 2 slides")
	requireContains(t, out, "Copied to: "+target)

	data, err := os.ReadFile(target)
	if err != nil || len(data) == 0 {
		t.Fatalf("expected copied video, got %v (%d bytes)", err, len(data))
	}

	layout, err := workspace.For(env.cfg.Paths.ProjectsDir, "user-1", projectID)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if _, err := os.Stat(layout.ResultPath()); err != nil {
		t.Fatalf("expected result.mp4 to persist: %v", err)
	}
	if _, err := os.Stat(layout.VideosDir()); !os.IsNotExist(err) {
		t.Fatalf("expected intermediate clips removed, stat err=%v", err)
	}

	out, _, err = runCLI(t, []string{"runs", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	var runs []api.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].State != "done" || runs[0].Slides != 2 {
		t.Fatalf("unexpected runs %+v", runs)
	}

	out, _, err = runCLI(t, []string{"runs", runs[0].ID}, env.configPath)
	if err != nil {
		t.Fatalf("runs <id>: %v", err)
	}
	requireContains(t, out, "State:     done")
}

func TestBuildLocalReportsIncompleteMedia(t *testing.T) {
	env := setupCLITestEnv(t)
	projectID := createProject(t, env, "user-1", "Deck")
	addSlide(t, env, projectID, 1)

	layout, err := workspace.For(env.cfg.Paths.ProjectsDir, "user-1", projectID)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if err := os.Remove(layout.ImagePath("slide-1.png")); err != nil {
		t.Fatalf("remove image: %v", err)
	}

	_, _, err = runCLI(t, []string{"build", "-u", "user-1", "-p", projectID}, env.configPath)
	if err == nil {
		t.Fatal("expected build to fail")
	}
	requireContains(t, err.Error(), "incomplete_media")

	out, _, err := runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, "failed")
	requireContains(t, out, "incomplete_media")
}

func TestBuildRequiresUserAndProject(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"build", "--user", "user-1"}, env.configPath); err == nil {
		t.Fatal("expected missing --project to fail")
	}
}

func TestBuildRemoteStreamsVideo(t *testing.T) {
	env := setupCLITestEnv(t)
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()
	env.pointAt(t, srv)

	target := filepath.Join(t.TempDir(), "remote.mp4")
	out, _, err := runCLI(t, []string{"build", "--remote", "-u", "user-1", "-p", "proj-9", "-o", target}, env.configPath)
	if err != nil {
		t.Fatalf("remote build: %v", err)
	}
	requireContains(t, out, "Wrote 9 bytes")
	if gotPath != "/api/users/user-1/projects/proj-9/video" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "mp4-bytes" {
		t.Fatalf("unexpected output %q (%v)", data, err)
	}
}

func TestBuildRemoteFailureLeavesNoFile(t *testing.T) {
	env := setupCLITestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "a video build is already running for this project", Kind: "conflict"})
	}))
	defer srv.Close()
	env.pointAt(t, srv)

	dir := t.TempDir()
	target := filepath.Join(dir, "remote.mp4")
	_, _, err := runCLI(t, []string{"build", "--remote", "-u", "user-1", "-p", "proj-9", "-o", target}, env.configPath)
	if err == nil {
		t.Fatal("expected conflict to fail the build")
	}
	requireContains(t, err.Error(), "conflict")
	requireContains(t, err.Error(), "HTTP 409")

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no output or partial files, found %d entries", len(entries))
	}
}

func TestBuildRemoteWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"build", "--remote", "-u", "user-1", "-p", "proj-9", "-o", filepath.Join(t.TempDir(), "x.mp4")}, env.configPath)
	if err == nil {
		t.Fatal("expected unreachable daemon to fail")
	}
	requireContains(t, err.Error(), "slidecast serve")
}

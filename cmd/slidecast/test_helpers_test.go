package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slidecast/internal/config"
	"slidecast/internal/testsupport"
)

// fakeFFmpeg answers -version and writes the last argument (the output path)
// so the pipeline can run end to end without a real encoder.
const fakeFFmpeg = `#!/bin/sh
for arg; do last="$arg"; done
case "$*" in
  *-version*) echo "ffmpeg version 6.1-test"; exit 0 ;;
esac
printf 'clip' > "$last"
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("SLIDECAST_API_TOKEN", "")
	t.Setenv("SLIDECAST_FFMPEG_PATH", "")

	cfg := testsupport.NewConfig(t)
	ffmpegPath := filepath.Join(base, "ffmpeg")
	if err := os.WriteFile(ffmpegPath, []byte(fakeFFmpeg), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	cfg.Encoding.FFmpegBinary = ffmpegPath
	cfg.Paths.APIBind = closedAddr(t)

	configPath := filepath.Join(homeDir, ".config", "slidecast", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

// closedAddr returns a loopback address with nothing listening on it.
func closedAddr(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()
	return addr
}

// pointAt rewrites the env config so the CLI talks to srv.
func (env *cliTestEnv) pointAt(t *testing.T, srv *httptest.Server) {
	t.Helper()
	env.cfg.Paths.APIBind = srv.Listener.Addr().String()
	writeTestConfig(t, env.configPath, env.cfg)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nprojects_dir = %q\nstate_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[encoding]\nffmpeg_binary = %q\nmax_parallel = %d\n\n[logging]\nlevel = \"error\"\n",
		cfg.Paths.ProjectsDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Encoding.FFmpegBinary,
		cfg.Encoding.MaxParallel,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// createProject runs `project create` and returns the new ID.
func createProject(t *testing.T, env *cliTestEnv, user, title string) string {
	t.Helper()
	out, _, err := runCLI(t, []string{"project", "create", "--user", user, "--title", title}, env.configPath)
	if err != nil {
		t.Fatalf("project create: %v", err)
	}
	return strings.TrimSpace(out)
}

// addSlide writes a media pair under the env base dir and imports it.
func addSlide(t *testing.T, env *cliTestEnv, projectID string, n int) {
	t.Helper()
	image := filepath.Join(env.baseDir, "media", fmt.Sprintf("slide-%d.png", n))
	audio := filepath.Join(env.baseDir, "media", fmt.Sprintf("slide-%d.mp3", n))
	testsupport.WriteFile(t, image, 64)
	testsupport.WriteFile(t, audio, 64)
	if _, _, err := runCLI(t, []string{"project", "add-slide", projectID, "--image", image, "--audio", audio}, env.configPath); err != nil {
		t.Fatalf("project add-slide: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

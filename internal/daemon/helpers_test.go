package daemon

import (
	"net/http/httptest"
	"testing"

	"slidecast/internal/assemble"
	"slidecast/internal/clip"
	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/pipeline"
	"slidecast/internal/store"
	"slidecast/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	store  *store.Store
	fake   *testsupport.FakeFFmpeg
	daemon *Daemon
	hub    *logging.StreamHub
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	fake := &testsupport.FakeFFmpeg{}
	hub := logging.NewStreamHub(128)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{cfg.Paths.LogDir + "/test.log"}, Stream: hub})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	orch, err := pipeline.New(cfg, pipeline.Dependencies{
		Resolver:  st,
		Encoder:   clip.NewEncoder(cfg, fake.Run, logger),
		Assembler: assemble.NewAssembler(cfg, fake.Run, logger),
		Recorder:  st,
	}, logger)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	d, err := New(cfg, st, ffmpeg.NewEngine("ffmpeg", logger), orch, hub, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return &fixture{cfg: cfg, store: st, fake: fake, daemon: d, hub: hub}
}

func (f *fixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := newAPIServer(f.cfg, f.daemon, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	ts := httptest.NewServer(srv.routes(f.cfg.Paths.APIToken))
	t.Cleanup(ts.Close)
	return ts
}

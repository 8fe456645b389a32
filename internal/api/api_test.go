package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"slidecast/internal/api"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

func TestFromRunRecordHidesServerErrorDetail(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	record := store.RunRecord{
		ID:           "run-1",
		State:        store.RunFailed,
		SlideCount:   4,
		ErrorKind:    "encode_failed",
		ErrorMessage: "encode slide 3: ffmpeg exited: /srv/projects/u/p/audios/x.mp3",
		StartedAt:    started,
		FinishedAt:   &finished,
	}

	dto := api.FromRunRecord(record)
	if dto.ErrorMessage != "video generation failed" {
		t.Fatalf("expected generic message, got %q", dto.ErrorMessage)
	}
	if dto.DurationSec != 90 {
		t.Fatalf("expected 90s duration, got %v", dto.DurationSec)
	}
	if dto.StartedAt != "2026-03-01T10:00:00.000Z" {
		t.Fatalf("unexpected startedAt %q", dto.StartedAt)
	}

	record.ErrorKind = "incomplete_media"
	record.ErrorMessage = "incomplete media: missing image or audio for slides s2"
	if got := api.FromRunRecord(record).ErrorMessage; got != record.ErrorMessage {
		t.Fatalf("client errors should pass through, got %q", got)
	}
}

func TestClientSendsTokenAndDecodesRuns(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(api.RunListResponse{Runs: []api.Run{{ID: "run-7", State: "done"}}})
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	runs, err := client.Runs(context.Background(), "proj-1", 5)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-7" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotQuery != "limit=5&project=proj-1" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestClientBuildSurfacesErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/users/u1/projects/p1/video" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "busy", Kind: services.KindConflict})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	var buf bytes.Buffer
	_, err := client.Build(context.Background(), "u1", "p1", &buf)
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 StatusError, got %v", err)
	}
	if services.ErrorKind(err) != services.KindConflict {
		t.Fatalf("expected conflict kind, got %q", services.ErrorKind(err))
	}
}

func TestNilClientIsUnavailable(t *testing.T) {
	client, err := api.NewClient("  ", "")
	if err != nil || client != nil {
		t.Fatalf("expected nil client for empty bind, got %v %v", client, err)
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, api.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientReportsUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	bind := srv.Listener.Addr().String()
	srv.Close()

	client, err := api.NewClient(bind, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, api.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for closed listener, got %v", err)
	}
}

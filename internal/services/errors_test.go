package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"slidecast/internal/services"
)

type kindError struct{ kind string }

func (e kindError) Error() string     { return "typed failure at /srv/projects/u/p/videos" }
func (e kindError) ErrorKind() string { return e.kind }

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "encoding", "clip", "ffmpeg failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"encoding", "clip", "ffmpeg failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassifyMapsKindsToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{"incomplete", fmt.Errorf("resolve: %w", kindError{"incomplete_media"}), services.KindIncompleteMedia, http.StatusBadRequest},
		{"not found typed", kindError{"not_found"}, services.KindNotFound, http.StatusNotFound},
		{"conflict typed", kindError{"conflict"}, services.KindConflict, http.StatusConflict},
		{"encode failed", kindError{"encode_failed"}, services.KindServerError, http.StatusInternalServerError},
		{"join failed", kindError{"join_failed"}, services.KindServerError, http.StatusInternalServerError},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), services.KindTimeout, http.StatusGatewayTimeout},
		{"timeout marker", services.Wrap(services.ErrTimeout, "encoding", "", "", nil), services.KindTimeout, http.StatusGatewayTimeout},
		{"not found marker", services.Wrap(services.ErrNotFound, "resolving", "", "", nil), services.KindNotFound, http.StatusNotFound},
		{"validation marker", services.Wrap(services.ErrValidation, "api", "", "bad id", nil), services.KindInvalidRequest, http.StatusBadRequest},
		{"plain", errors.New("disk full"), services.KindServerError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := services.Classify(tc.err)
			if out.Kind != tc.kind || out.Status != tc.status {
				t.Fatalf("Classify = %s/%d, want %s/%d", out.Kind, out.Status, tc.kind, tc.status)
			}
			if strings.Contains(out.Message, "/") {
				t.Fatalf("outcome message leaks a path: %q", out.Message)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if out := services.Classify(nil); out.Status != http.StatusOK || out.Kind != "" {
		t.Fatalf("unexpected outcome for nil: %+v", out)
	}
}

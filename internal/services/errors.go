package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Client-visible outcome kinds.
const (
	KindIncompleteMedia = "incomplete_media"
	KindInvalidRequest  = "invalid_request"
	KindNotFound        = "not_found"
	KindConflict        = "conflict"
	KindTimeout         = "timeout"
	KindServerError     = "server_error"
)

// ErrorClassifier allows errors to declare their classification.
//
// Typed pipeline errors return kinds such as "incomplete_media",
// "encode_failed", "missing_clip", or "join_failed".
type ErrorClassifier interface {
	ErrorKind() string
}

// Outcome is the client-facing view of a failed run. Message never carries
// file paths or subprocess output.
type Outcome struct {
	Kind    string
	Status  int
	Message string
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorKind returns the declared kind of err, walking the wrap chain.
func ErrorKind(err error) string {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return ""
}

// Classify maps a pipeline error to the outcome reported to callers.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Status: http.StatusOK}
	}
	switch ErrorKind(err) {
	case KindIncompleteMedia:
		return Outcome{Kind: KindIncompleteMedia, Status: http.StatusBadRequest, Message: "project media is incomplete"}
	case KindNotFound:
		return Outcome{Kind: KindNotFound, Status: http.StatusNotFound, Message: "project not found"}
	case KindConflict:
		return Outcome{Kind: KindConflict, Status: http.StatusConflict, Message: "a video build is already running for this project"}
	case KindTimeout:
		return Outcome{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: "video build timed out"}
	}
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Outcome{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: "video build timed out"}
	case errors.Is(err, ErrNotFound):
		return Outcome{Kind: KindNotFound, Status: http.StatusNotFound, Message: "project not found"}
	case errors.Is(err, ErrConflict):
		return Outcome{Kind: KindConflict, Status: http.StatusConflict, Message: "a video build is already running for this project"}
	case errors.Is(err, ErrValidation):
		return Outcome{Kind: KindInvalidRequest, Status: http.StatusBadRequest, Message: "invalid request"}
	default:
		return Outcome{Kind: KindServerError, Status: http.StatusInternalServerError, Message: "video generation failed"}
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

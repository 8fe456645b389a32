// Package slides defines the ordered slide sequence a video is built from and
// the contract for resolving it from storage.
package slides

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrProjectNotFound is returned when the project does not exist or is not
// owned by the requesting user.
var ErrProjectNotFound = errors.New("project not found")

// Descriptor is one slide of a project. SequenceIndex is the 1-based position
// in the project's declared order.
type Descriptor struct {
	SequenceIndex int    `json:"sequence_index"`
	SlideID       string `json:"slide_id"`
	ImageRef      string `json:"image_ref"`
	AudioRef      string `json:"audio_ref"`
}

// Sequence is a project's slides in declared order.
type Sequence []Descriptor

// Indexes returns the sequence indexes in declared order.
func (s Sequence) Indexes() []int {
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = d.SequenceIndex
	}
	return out
}

// Resolver looks up the slides of a project.
type Resolver interface {
	ResolveSlides(ctx context.Context, projectID, userID string) (Sequence, error)
}

// IncompleteMediaError lists the slides that cannot be rendered.
type IncompleteMediaError struct {
	SlideIDs []string
	Reason   string
}

func (e *IncompleteMediaError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing image or audio"
	}
	if len(e.SlideIDs) == 0 {
		return "incomplete media: " + reason
	}
	return fmt.Sprintf("incomplete media: %s for slides %s", reason, strings.Join(e.SlideIDs, ", "))
}

func (e *IncompleteMediaError) ErrorKind() string { return "incomplete_media" }

type notFoundError struct{ projectID string }

func (e *notFoundError) Error() string     { return fmt.Sprintf("project %s not found", e.projectID) }
func (e *notFoundError) ErrorKind() string { return "not_found" }
func (e *notFoundError) Unwrap() error     { return ErrProjectNotFound }

// NotFound returns an error matching ErrProjectNotFound for projectID.
func NotFound(projectID string) error {
	return &notFoundError{projectID: projectID}
}

// Validate checks that seq can be rendered: it is non-empty, every slide has
// both references, and sequence indexes are positive and unique.
func Validate(seq Sequence) error {
	if len(seq) == 0 {
		return &IncompleteMediaError{Reason: "project has no slides"}
	}
	var missing []string
	seen := make(map[int]string, len(seq))
	for _, d := range seq {
		if strings.TrimSpace(d.ImageRef) == "" || strings.TrimSpace(d.AudioRef) == "" {
			missing = append(missing, d.SlideID)
		}
		if d.SequenceIndex < 1 {
			return fmt.Errorf("slide %s: sequence index %d is not positive", d.SlideID, d.SequenceIndex)
		}
		if other, dup := seen[d.SequenceIndex]; dup {
			return fmt.Errorf("slides %s and %s share sequence index %d", other, d.SlideID, d.SequenceIndex)
		}
		seen[d.SequenceIndex] = d.SlideID
	}
	if len(missing) > 0 {
		return &IncompleteMediaError{SlideIDs: missing}
	}
	return nil
}

// Sorted returns a copy of seq ordered by SequenceIndex.
func Sorted(seq Sequence) Sequence {
	out := append(Sequence(nil), seq...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceIndex < out[j].SequenceIndex })
	return out
}

package api

import (
	"time"

	"slidecast/internal/deps"
	"slidecast/internal/logging"
	"slidecast/internal/pipeline"
	"slidecast/internal/store"
)

// FromRunRecord converts a ledger record to its API representation.
func FromRunRecord(record store.RunRecord) Run {
	dto := Run{
		ID:           record.ID,
		UserID:       record.UserID,
		ProjectID:    record.ProjectID,
		State:        string(record.State),
		Slides:       record.SlideCount,
		ErrorKind:    record.ErrorKind,
		ErrorMessage: publicMessage(record),
		DurationSec:  record.Duration().Seconds(),
	}
	if !record.StartedAt.IsZero() {
		dto.StartedAt = formatTime(record.StartedAt)
	}
	if record.FinishedAt != nil {
		dto.FinishedAt = formatTime(*record.FinishedAt)
	}
	return dto
}

// FromRunRecords converts a ledger page.
func FromRunRecords(records []store.RunRecord) []Run {
	out := make([]Run, 0, len(records))
	for _, r := range records {
		out = append(out, FromRunRecord(r))
	}
	return out
}

// FromActiveRuns converts in-flight run snapshots.
func FromActiveRuns(runs []pipeline.ActiveRun) []ActiveRun {
	out := make([]ActiveRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, ActiveRun{
			RunID:     r.RunID,
			UserID:    r.UserID,
			ProjectID: r.ProjectID,
			State:     string(r.State),
			Slides:    r.Slides,
			StartedAt: formatTime(r.StartedAt),
		})
	}
	return out
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromLogEvents converts stream hub events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: formatTime(evt.Timestamp),
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			RunID:     evt.RunID,
			ProjectID: evt.ProjectID,
			Stage:     evt.Stage,
			Fields:    evt.Fields,
		})
	}
	return out
}

// FromRunCounts converts ledger stats keyed by state.
func FromRunCounts(stats map[store.RunState]int) map[string]int {
	out := make(map[string]int, len(stats))
	for state, n := range stats {
		out[string(state)] = n
	}
	return out
}

// publicMessage hides internal error detail for server-side failures. Client
// errors (incomplete media, conflicts) are safe to repeat.
func publicMessage(record store.RunRecord) string {
	switch record.ErrorKind {
	case "":
		return ""
	case "incomplete_media", "not_found", "conflict", "timeout", "interrupted", "invalid_request":
		return record.ErrorMessage
	default:
		return "video generation failed"
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(dateTimeFormat)
}

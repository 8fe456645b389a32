package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunState is a pipeline run's position in its lifecycle.
type RunState string

const (
	RunResolving  RunState = "resolving"
	RunEncoding   RunState = "encoding"
	RunAssembling RunState = "assembling"
	RunDone       RunState = "done"
	RunFailed     RunState = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s RunState) Terminal() bool {
	return s == RunDone || s == RunFailed
}

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the persisted view of one pipeline run.
type RunRecord struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	ProjectID    string     `json:"project_id"`
	State        RunState   `json:"state"`
	SlideCount   int        `json:"slide_count"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Duration is the wall time from start to finish, or to now while running.
func (r RunRecord) Duration() time.Duration {
	end := time.Now()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	if r.StartedAt.IsZero() {
		return 0
	}
	return end.Sub(r.StartedAt)
}

const runColumns = "id, user_id, project_id, state, slide_count, error_kind, error_message, artifact_path, started_at, updated_at, finished_at"

// BeginRun records a new run in the resolving state.
func (s *Store) BeginRun(ctx context.Context, runID, userID, projectID string) error {
	now := formatTime(time.Now())
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, user_id, project_id, state, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, userID, projectID, RunResolving, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunState moves a run to a non-terminal state.
func (s *Store) UpdateRunState(ctx context.Context, runID string, state RunState, slideCount int) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, slide_count = ?, updated_at = ? WHERE id = ? AND finished_at IS NULL`,
		state, slideCount, formatTime(time.Now()), runID,
	)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	return requireRow(res, runID)
}

// FinishRun records a run's terminal outcome. A run is finished at most once.
func (s *Store) FinishRun(ctx context.Context, runID string, state RunState, errorKind, errorMessage, artifactPath string) error {
	if !state.Terminal() {
		return fmt.Errorf("finish run %s: %s is not a terminal state", runID, state)
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, error_kind = ?, error_message = ?, artifact_path = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND finished_at IS NULL`,
		state, nullString(errorKind), nullString(errorMessage), nullString(artifactPath), now, now, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRow(res, runID)
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	record, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return record, nil
}

// ListRuns returns the newest runs first, optionally filtered by project.
func (s *Store) ListRuns(ctx context.Context, projectID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

// MarkInterrupted fails every unfinished run. The daemon calls it at startup
// because no run survives a process restart.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, error_kind = 'interrupted', error_message = 'process exited before the run finished',
             updated_at = ?, finished_at = ? WHERE finished_at IS NULL`,
		RunFailed, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// RunStats counts runs grouped by state.
func (s *Store) RunStats(ctx context.Context) (map[RunState]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM runs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[RunState]int)
	for rows.Next() {
		var state RunState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*RunRecord, error) {
	var (
		r           RunRecord
		state       string
		errorKind   sql.NullString
		errorMsg    sql.NullString
		artifact    sql.NullString
		startedRaw  sql.NullString
		updatedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(&r.ID, &r.UserID, &r.ProjectID, &state, &r.SlideCount,
		&errorKind, &errorMsg, &artifact, &startedRaw, &updatedRaw, &finishedRaw); err != nil {
		return nil, err
	}
	r.State = RunState(state)
	r.ErrorKind = errorKind.String
	r.ErrorMessage = errorMsg.String
	r.ArtifactPath = artifact.String
	r.StartedAt = parseTime(startedRaw)
	r.UpdatedAt = parseTime(updatedRaw)
	if finished := parseTime(finishedRaw); !finished.IsZero() {
		r.FinishedAt = &finished
	}
	return &r, nil
}

func requireRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w or already finished", runID, ErrRunNotFound)
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

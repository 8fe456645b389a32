package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes a ledger entry in a transport-friendly format.
type Run struct {
	ID           string  `json:"id"`
	UserID       string  `json:"userId"`
	ProjectID    string  `json:"projectId"`
	State        string  `json:"state"`
	Slides       int     `json:"slides"`
	ErrorKind    string  `json:"errorKind,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	StartedAt    string  `json:"startedAt,omitempty"`
	FinishedAt   string  `json:"finishedAt,omitempty"`
	DurationSec  float64 `json:"durationSeconds"`
}

// ActiveRun is an in-flight run.
type ActiveRun struct {
	RunID     string `json:"runId"`
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	State     string `json:"state"`
	Slides    int    `json:"slides"`
	StartedAt string `json:"startedAt"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// EngineStatus reports the managed ffmpeg resource.
type EngineStatus struct {
	Binary  string `json:"binary"`
	Version string `json:"version,omitempty"`
	Healthy bool   `json:"healthy"`
	Running int    `json:"running"`
	Detail  string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"startedAt,omitempty"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	Engine       EngineStatus       `json:"engine"`
	Dependencies []DependencyStatus `json:"dependencies"`
	ActiveRuns   []ActiveRun        `json:"activeRuns"`
	RunCounts    map[string]int     `json:"runCounts"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// LogEvent is one structured log line.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	RunID     string            `json:"runId,omitempty"`
	ProjectID string            `json:"projectId,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events plus the cursor for the next
// request.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
	"slidecast/internal/textutil"
	"slidecast/internal/workspace"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("paths.api_bind is empty")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	// Builds stream the whole video after the run finishes, so the write
	// deadline has to cover the run timeout.
	writeTimeout := cfg.RunTimeout() + 2*time.Minute
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(token, s.withRequestID(h)))
	}
	handle("POST /api/users/{userID}/projects/{projectID}/video", s.handleBuild)
	handle("GET /api/users/{userID}/projects/{projectID}/video", s.handleDownload)
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/runs", s.handleRuns)
	handle("GET /api/runs/{runID}", s.handleRun)
	handle("GET /api/logs", s.handleLogs)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	}
}

func (s *apiServer) handleBuild(w http.ResponseWriter, r *http.Request) {
	userID, projectID := r.PathValue("userID"), r.PathValue("projectID")
	result, err := s.daemon.orch.Run(r.Context(), projectID, userID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.serveVideo(w, r, projectID, result.ArtifactPath)
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	userID, projectID := r.PathValue("userID"), r.PathValue("projectID")
	project, err := s.daemon.store.GetProject(r.Context(), projectID)
	if err != nil || project.UserID != userID {
		s.writeError(w, http.StatusNotFound, services.KindNotFound, "video not found")
		return
	}
	layout, err := workspace.For(s.daemon.cfg.Paths.ProjectsDir, userID, projectID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.serveVideo(w, r, projectID, layout.ResultPath())
}

func (s *apiServer) serveVideo(w http.ResponseWriter, r *http.Request, projectID, path string) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeError(w, http.StatusNotFound, services.KindNotFound, "video not found")
			return
		}
		s.writeFailure(w, r, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	name := projectID
	if project, err := s.daemon.store.GetProject(r.Context(), projectID); err == nil {
		name = project.Title
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.mp4"`, textutil.Slug(name, "video")))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file); err != nil {
		s.log().Debug("video stream interrupted", logging.Error(err))
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Engine: api.EngineStatus{
			Binary:  status.Engine.Binary,
			Version: status.Engine.Version,
			Healthy: status.Engine.Healthy,
			Running: status.Engine.Running,
			Detail:  status.Engine.Detail,
		},
		Dependencies: api.FromDependencies(status.Dependencies),
		ActiveRuns:   api.FromActiveRuns(status.ActiveRuns),
		RunCounts:    api.FromRunCounts(status.RunCounts),
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	records, err := s.daemon.store.ListRuns(r.Context(), strings.TrimSpace(query.Get("project")), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: api.FromRunRecords(records)})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	record, err := s.daemon.store.GetRun(r.Context(), r.PathValue("runID"))
	if errors.Is(err, store.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, services.KindNotFound, "run not found")
		return
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunResponse{Run: api.FromRunRecord(*record)})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	runID := strings.TrimSpace(query.Get("run"))

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
	}
	raw, next, err := hub.Fetch(ctx, logging.StreamQuery{Since: since, Limit: limit, RunID: runID, Wait: follow})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeFailure(w, r, err)
		return
	}

	events := api.FromLogEvents(raw)
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: events, Next: next})
}

// writeFailure classifies err for the client and logs the detail that the
// client must not see.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	outcome := services.Classify(err)
	if outcome.Status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Error("request failed",
			logging.String("path", r.URL.Path),
			logging.String("error_kind", outcome.Kind),
			logging.Error(err),
		)
	}
	message := outcome.Message
	if outcome.Kind == services.KindIncompleteMedia {
		message = err.Error()
	}
	s.writeError(w, outcome.Status, outcome.Kind, message)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

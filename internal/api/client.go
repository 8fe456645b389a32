package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnavailable is returned when no daemon API is configured or the daemon
// cannot be reached.
var ErrUnavailable = errors.New("daemon API unavailable")

// StatusError is a non-2xx response decoded from the daemon.
type StatusError struct {
	Status int
	Body   ErrorResponse
}

func (e *StatusError) Error() string {
	if e.Body.Error != "" {
		return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Body.Error)
	}
	return fmt.Sprintf("daemon returned %d", e.Status)
}

// ErrorKind exposes the daemon's classification.
func (e *StatusError) ErrorKind() string { return e.Body.Kind }

// Client talks to a running slidecast daemon.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// LogQuery selects a page of daemon logs.
type LogQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	RunID  string
}

// NewClient builds a client for bind (host:port or URL). An empty bind
// returns nil.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: builds and log follow block until the caller cancels.
		http: &http.Client{},
	}, nil
}

// Status fetches /api/status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.getJSON(ctx, "/api/status", nil, &out)
	return out, err
}

// Runs fetches the ledger, optionally filtered by project.
func (c *Client) Runs(ctx context.Context, projectID string, limit int) ([]Run, error) {
	values := url.Values{}
	if strings.TrimSpace(projectID) != "" {
		values.Set("project", projectID)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out RunListResponse
	if err := c.getJSON(ctx, "/api/runs", values, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// Logs fetches a page of daemon log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if strings.TrimSpace(q.RunID) != "" {
		values.Set("run", q.RunID)
	}
	var out LogStreamResponse
	err := c.getJSON(ctx, "/api/logs", values, &out)
	return out, err
}

// Build asks the daemon to render a project and copies the video to w.
func (c *Client) Build(ctx context.Context, userID, projectID string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodPost, videoPath(userID, projectID), nil, "video/mp4")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

func videoPath(userID, projectID string) string {
	return "/api/users/" + url.PathEscape(userID) + "/projects/" + url.PathEscape(projectID) + "/video"
}

func (c *Client) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, values, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, accept string) (*http.Response, error) {
	if c == nil {
		return nil, ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		statusErr := &StatusError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&statusErr.Body)
		return nil, statusErr
	}
	return resp, nil
}

package agentmesh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AgentMesh REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// GoalSubmission represents the payload required to create a new goal.
type GoalSubmission struct {
	ID          string         `json:"id,omitempty"`
	Description string         `json:"description"`
	Source      string         `json:"source,omitempty"`
	AgentType   string         `json:"agent_type,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RunReport summarizes the execution of a completed goal.
type RunReport struct {
	Success        bool     `json:"success"`
	StepsTotal     int      `json:"steps_total"`
	StepsCompleted int      `json:"steps_completed"`
	StepsFailed    int      `json:"steps_failed"`
	ExecutionOrder []string `json:"execution_order,omitempty"`
	Summary        string   `json:"summary,omitempty"`
}

// Goal mirrors the server side goal resource.
type Goal struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Source      string         `json:"source,omitempty"`
	AgentType   string         `json:"agent_type,omitempty"`
	Priority    int            `json:"priority"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxRetries  int            `json:"max_retries"`
	LastError   string         `json:"last_error,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	Report      *RunReport     `json:"report,omitempty"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
}

// GoalStats aggregates goal counters per status.
type GoalStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// AgentSnapshot describes one local agent of the fleet.
type AgentSnapshot struct {
	AgentID        string `json:"agent_id"`
	AgentType      string `json:"agent_type"`
	Status         string `json:"status"`
	CurrentTaskID  string `json:"current_task_id"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksFailed    int    `json:"tasks_failed"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// ListGoalsOptions narrows the goal listing. Zero values are ignored.
type ListGoalsOptions struct {
	Limit      int
	Offset     int
	Statuses   []string
	AgentTypes []string
	Query      string
	Ascending  bool
}

// APIError represents server side validation or internal errors.
// StatusCode is filled from the HTTP response, never from the body.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentmesh api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentmesh api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentMesh API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// SubmitGoal creates a new goal and returns the stored resource.
func (c *Client) SubmitGoal(ctx context.Context, submission GoalSubmission) (Goal, error) {
	var created Goal
	if err := c.post(ctx, "/api/v1/goals", submission, &created); err != nil {
		return Goal{}, err
	}
	return created, nil
}

// GetGoal fetches a goal by identifier.
func (c *Client) GetGoal(ctx context.Context, goalID string) (Goal, error) {
	var fetched Goal
	endpoint := "/api/v1/goals/" + url.PathEscape(goalID)
	if err := c.get(ctx, endpoint, &fetched); err != nil {
		return Goal{}, err
	}
	return fetched, nil
}

// ListGoals returns goals matching the supplied filters.
func (c *Client) ListGoals(ctx context.Context, opts ListGoalsOptions) ([]Goal, error) {
	var goals []Goal
	endpoint := "/api/v1/goals"
	if query := opts.encode(); query != "" {
		endpoint += "?" + query
	}
	if err := c.get(ctx, endpoint, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

// Stats returns aggregated goal counters.
func (c *Client) Stats(ctx context.Context) (GoalStats, error) {
	var stats GoalStats
	if err := c.get(ctx, "/api/v1/goals/stats", &stats); err != nil {
		return GoalStats{}, err
	}
	return stats, nil
}

// Agents lists the registered local agents with their runtime state.
func (c *Client) Agents(ctx context.Context) ([]AgentSnapshot, error) {
	var snapshots []AgentSnapshot
	if err := c.get(ctx, "/api/v1/agents", &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

// WaitForGoal polls until the goal reaches a terminal status or the context
// expires. A non positive interval falls back to one second.
func (c *Client) WaitForGoal(ctx context.Context, goalID string, interval time.Duration) (Goal, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fetched, err := c.GetGoal(ctx, goalID)
		if err != nil {
			return Goal{}, err
		}
		if fetched.Status == "succeeded" || fetched.Status == "failed" {
			return fetched, nil
		}
		select {
		case <-ctx.Done():
			return Goal{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o ListGoalsOptions) encode() string {
	values := url.Values{}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		values.Set("offset", strconv.Itoa(o.Offset))
	}
	for _, status := range o.Statuses {
		values.Add("status", status)
	}
	for _, agentType := range o.AgentTypes {
		values.Add("agent_type", agentType)
	}
	if o.Query != "" {
		values.Set("query", o.Query)
	}
	if o.Ascending {
		values.Set("order", "asc")
	}
	return values.Encode()
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel.Path = path.Join(c.baseURL.Path, rel.Path)
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

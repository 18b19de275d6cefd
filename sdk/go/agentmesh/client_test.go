package agentmesh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmitGoal(t *testing.T) {
	goalSubmitted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/goals" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var submission GoalSubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if submission.Description != "restart nginx" {
			t.Fatalf("unexpected description: %q", submission.Description)
		}
		goalSubmitted = true
		_ = json.NewEncoder(w).Encode(Goal{ID: "goal-1", Status: "pending"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	created, err := client.SubmitGoal(context.Background(), GoalSubmission{Description: "restart nginx"})
	if err != nil {
		t.Fatalf("submit goal: %v", err)
	}
	if created.ID != "goal-1" {
		t.Fatalf("expected goal-1, got %q", created.ID)
	}
	if !goalSubmitted {
		t.Fatal("goal was not submitted")
	}
}

func TestListGoalsEncodesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/goals" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("limit") != "5" {
			t.Fatalf("unexpected limit: %q", query.Get("limit"))
		}
		if got := query["status"]; len(got) != 2 || got[0] != "pending" || got[1] != "failed" {
			t.Fatalf("unexpected statuses: %v", got)
		}
		if query.Get("agent_type") != "task" {
			t.Fatalf("unexpected agent_type: %q", query.Get("agent_type"))
		}
		if query.Get("order") != "asc" {
			t.Fatalf("unexpected order: %q", query.Get("order"))
		}
		_ = json.NewEncoder(w).Encode([]Goal{{ID: "goal-1"}, {ID: "goal-2"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	goals, err := client.ListGoals(context.Background(), ListGoalsOptions{
		Limit:      5,
		Statuses:   []string{"pending", "failed"},
		AgentTypes: []string{"task"},
		Ascending:  true,
	})
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(goals) != 2 {
		t.Fatalf("expected 2 goals, got %d", len(goals))
	}
}

func TestGetGoalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/goals/goal-404" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(struct {
				Error APIError `json:"error"`
			}{Error: APIError{Code: "GOAL_NOT_FOUND", Message: "missing"}})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	_, err := client.GetGoal(context.Background(), "goal-404")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "GOAL_NOT_FOUND" {
		t.Fatalf("unexpected error code: %s", apiErr.Code)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
}

func TestWaitForGoalPollsUntilTerminal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/goals/goal-wait" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		calls++
		status := "running"
		if calls >= 3 {
			status = "succeeded"
		}
		_ = json.NewEncoder(w).Encode(Goal{ID: "goal-wait", Status: status})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	fetched, err := client.WaitForGoal(ctx, "goal-wait", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for goal: %v", err)
	}
	if fetched.Status != "succeeded" {
		t.Fatalf("expected succeeded, got %q", fetched.Status)
	}
	if calls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", calls)
	}
}

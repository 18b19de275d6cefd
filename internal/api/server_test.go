package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AgentMesh/internal/goal"
)

type noopProducer struct{}

func (noopProducer) Publish(context.Context, string) error { return nil }

func (noopProducer) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *goal.Service) {
	t.Helper()
	store := goal.NewMemoryStore()
	service := goal.NewService(store, noopProducer{}, 3)
	return NewServer("127.0.0.1:0", service, nil), service
}

func TestHandleSubmitGoal(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("success", func(t *testing.T) {
		body := strings.NewReader(`{"description":"重启 nginx","agent_type":"task"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/goals", body)
		recorder := httptest.NewRecorder()

		server.handleGoals(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("期望状态码 200, 实际 %d: %s", recorder.Code, recorder.Body.String())
		}
		var created goal.Goal
		if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
			t.Fatalf("响应解析失败: %v", err)
		}
		if created.ID == "" {
			t.Fatal("期望生成目标 ID")
		}
		if created.Status != goal.StatusPending {
			t.Fatalf("期望状态 pending, 实际 %s", created.Status)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/goals", strings.NewReader(`{}`))
		recorder := httptest.NewRecorder()

		server.handleGoals(recorder, req)

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("期望状态码 400, 实际 %d", recorder.Code)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/goals", strings.NewReader(`{`))
		recorder := httptest.NewRecorder()

		server.handleGoals(recorder, req)

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("期望状态码 400, 实际 %d", recorder.Code)
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/goals", nil)
		recorder := httptest.NewRecorder()

		server.handleGoals(recorder, req)

		if recorder.Code != http.StatusMethodNotAllowed {
			t.Fatalf("期望状态码 405, 实际 %d", recorder.Code)
		}
	})
}

func TestHandleGoalDetail(t *testing.T) {
	server, service := newTestServer(t)

	submitted, err := service.Submit(context.Background(), goal.SubmitRequest{
		ID:          "goal-detail-1",
		Description: "清理临时目录",
	})
	if err != nil {
		t.Fatalf("提交目标失败: %v", err)
	}

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/goals/"+submitted.ID, nil)
		recorder := httptest.NewRecorder()

		server.handleGoalDetail(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("期望状态码 200, 实际 %d: %s", recorder.Code, recorder.Body.String())
		}
		var fetched goal.Goal
		if err := json.Unmarshal(recorder.Body.Bytes(), &fetched); err != nil {
			t.Fatalf("响应解析失败: %v", err)
		}
		if fetched.ID != submitted.ID {
			t.Fatalf("期望目标 %s, 实际 %s", submitted.ID, fetched.ID)
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/goals/"+submitted.ID, nil)
		recorder := httptest.NewRecorder()

		server.handleGoalDetail(recorder, req)

		if recorder.Code != http.StatusMethodNotAllowed {
			t.Fatalf("期望状态码 405, 实际 %d", recorder.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/goals/", nil)
		recorder := httptest.NewRecorder()

		server.handleGoalDetail(recorder, req)

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("期望状态码 400, 实际 %d", recorder.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/goals/absent", nil)
		recorder := httptest.NewRecorder()

		server.handleGoalDetail(recorder, req)

		if recorder.Code != http.StatusNotFound {
			t.Fatalf("期望状态码 404, 实际 %d", recorder.Code)
		}
		var payload map[string]errorBody
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("响应解析失败: %v", err)
		}
		if payload["error"].Code != string(goal.CodeGoalNotFound) {
			t.Fatalf("期望错误码 %s, 实际 %s", goal.CodeGoalNotFound, payload["error"].Code)
		}
	})
}

func TestHandleListGoalsWithFilters(t *testing.T) {
	server, service := newTestServer(t)

	ctx := context.Background()
	for _, req := range []goal.SubmitRequest{
		{ID: "g-list-1", Description: "巡检磁盘", AgentType: "monitoring"},
		{ID: "g-list-2", Description: "重启服务", AgentType: "task"},
		{ID: "g-list-3", Description: "轮转日志", AgentType: "task"},
	} {
		if _, err := service.Submit(ctx, req); err != nil {
			t.Fatalf("提交目标失败: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/goals?agent_type=task&limit=10&order=asc", nil)
	recorder := httptest.NewRecorder()

	server.handleGoals(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("期望状态码 200, 实际 %d: %s", recorder.Code, recorder.Body.String())
	}
	var goals []*goal.Goal
	if err := json.Unmarshal(recorder.Body.Bytes(), &goals); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if len(goals) != 2 {
		t.Fatalf("期望返回 2 个目标, 实际 %d", len(goals))
	}
	for _, g := range goals {
		if g.AgentType != "task" {
			t.Fatalf("期望 agent_type=task, 实际 %s", g.AgentType)
		}
	}
}

func TestHandleGoalStats(t *testing.T) {
	server, service := newTestServer(t)

	if _, err := service.Submit(context.Background(), goal.SubmitRequest{Description: "统计测试"}); err != nil {
		t.Fatalf("提交目标失败: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/goals/stats", nil)
	recorder := httptest.NewRecorder()

	server.handleGoalStats(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("期望状态码 200, 实际 %d", recorder.Code)
	}
	var stats goal.GoalStats
	if err := json.Unmarshal(recorder.Body.Bytes(), &stats); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("期望 total=1 pending=1, 实际 %+v", stats)
	}
}

func TestServerShutdownOnContextCancel(t *testing.T) {
	server, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("期望 context.Canceled, 实际 %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("服务未在超时前退出")
	}
}

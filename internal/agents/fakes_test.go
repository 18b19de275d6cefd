package agents

import (
	"context"
	"sync"
	"time"

	"AgentMesh/internal/memory"
	"AgentMesh/internal/orchestrator"
	"AgentMesh/internal/think"
	"AgentMesh/internal/tools"
)

// fakeThink 返回预设文本，并记录收到的请求。
type fakeThink struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []think.Request
}

func (f *fakeThink) Infer(_ context.Context, req think.Request) (*think.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &think.Response{Text: f.text, ModelUsed: "fake"}, nil
}

// fakeTools 按工具名返回预设结果，并记录所有调用。
type fakeTools struct {
	mu      sync.Mutex
	results map[string]*tools.Result
	calls   []tools.Invocation
}

func newFakeTools() *fakeTools {
	return &fakeTools{results: make(map[string]*tools.Result)}
}

func (f *fakeTools) Execute(_ context.Context, inv tools.Invocation) (*tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	if result, ok := f.results[inv.Tool]; ok {
		return result, nil
	}
	return &tools.Result{Success: true, Output: map[string]any{}, Tool: inv.Tool}, nil
}

func (f *fakeTools) Rollback(context.Context, string, string) error { return nil }

func (f *fakeTools) List(context.Context, string) ([]tools.Spec, error) { return nil, nil }

func (f *fakeTools) callCount(tool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call.Tool == tool {
			count++
		}
	}
	return count
}

// fakeMemory 把事件与状态记在内存里。
type fakeMemory struct {
	mu      sync.Mutex
	events  []memory.Event
	states  map[string]any
	metrics map[string]float64
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		states:  make(map[string]any),
		metrics: make(map[string]float64),
	}
}

func (f *fakeMemory) PushEvent(_ context.Context, event memory.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeMemory) RecentEvents(_ context.Context, query memory.EventQuery) ([]memory.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	if query.Count > 0 && len(out) > query.Count {
		out = out[len(out)-query.Count:]
	}
	return out, nil
}

func (f *fakeMemory) StoreState(_ context.Context, agentID, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[agentID+"/"+key] = value
	return nil
}

func (f *fakeMemory) RecallState(_ context.Context, agentID, key string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[agentID+"/"+key], nil
}

func (f *fakeMemory) UpdateMetric(_ context.Context, key string, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics[key] = value
	return nil
}

func (f *fakeMemory) eventCategories() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, event := range f.events {
		out = append(out, event.Category)
	}
	return out
}

// fakeOrchestrator 立即完成所有提交的目标。
type fakeOrchestrator struct {
	mu          sync.Mutex
	submissions []orchestrator.Submission
	finalStatus string
}

func (f *fakeOrchestrator) RegisterAgent(context.Context, orchestrator.Registration) error {
	return nil
}

func (f *fakeOrchestrator) UnregisterAgent(context.Context, string) error { return nil }

func (f *fakeOrchestrator) SendHeartbeat(context.Context, orchestrator.Heartbeat) error {
	return nil
}

func (f *fakeOrchestrator) SubmitGoal(_ context.Context, sub orchestrator.Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, sub)
	return "goal-1", nil
}

func (f *fakeOrchestrator) GetGoalStatus(_ context.Context, goalID string) (*orchestrator.GoalStatus, error) {
	status := f.finalStatus
	if status == "" {
		status = "completed"
	}
	return &orchestrator.GoalStatus{
		Goal:            orchestrator.GoalView{ID: goalID, Status: status},
		CurrentPhase:    "done",
		ProgressPercent: 100,
	}, nil
}

func (f *fakeOrchestrator) WaitForGoal(ctx context.Context, goalID string, _ time.Duration) (*orchestrator.GoalStatus, error) {
	return f.GetGoalStatus(ctx, goalID)
}

package plan

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeExecutor 以可编程的方式模拟外部步骤执行者。
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []string
	failIDs map[string]bool
	delays  map[string]time.Duration
}

func (f *fakeExecutor) Execute(ctx context.Context, step *Step, completed map[string]*Result) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, step.ID)
	f.mu.Unlock()

	if delay, ok := f.delays[step.ID]; ok {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failIDs[step.ID] {
		return &Result{Success: false, Error: "boom"}, nil
	}
	return &Result{Success: true, Output: map[string]any{"step": step.ID}}, nil
}

func (f *fakeExecutor) called(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call == id {
			return true
		}
	}
	return false
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) PlanExecuted(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func buildPlan(t *testing.T, raw []RawStep) *Plan {
	t.Helper()
	return NewBuilder().Build("test goal", raw)
}

// manualPlan 直接构造 Plan，用于覆盖 Builder 不会产出的拓扑（如依赖环）。
func manualPlan(steps ...*Step) *Plan {
	p := &Plan{ID: "manual", Goal: "manual", Steps: steps, byID: make(map[string]*Step, len(steps))}
	for _, step := range steps {
		step.Status = StatusPending
		if step.Input == nil {
			step.Input = map[string]any{}
		}
		p.byID[step.ID] = step
	}
	return p
}

func TestRunnerIndependentStepsSingleWave(t *testing.T) {
	exec := &fakeExecutor{}
	p := buildPlan(t, []RawStep{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	report := NewRunner(exec).Run(context.Background(), p)

	if !report.Success {
		t.Fatalf("期望整体成功: %+v", report)
	}
	if report.StepsCompleted+report.StepsFailed != report.StepsTotal {
		t.Fatalf("完成数与失败数之和应等于总数: %+v", report)
	}
	if len(report.ExecutionOrder) != 3 {
		t.Fatalf("三个步骤都应被执行: %v", report.ExecutionOrder)
	}
}

func TestRunnerRespectsDependencyOrder(t *testing.T) {
	exec := &fakeExecutor{}
	p := buildPlan(t, []RawStep{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	})

	report := NewRunner(exec).Run(context.Background(), p)

	posA, posB := -1, -1
	for i, id := range report.ExecutionOrder {
		switch id {
		case "a":
			posA = i
		case "b":
			posB = i
		}
	}
	if posA < 0 || posB < 0 || posB < posA {
		t.Fatalf("b 不应先于 a 执行: %v", report.ExecutionOrder)
	}
}

func TestRunnerCascadingSkip(t *testing.T) {
	exec := &fakeExecutor{failIDs: map[string]bool{"a": true}}
	p := buildPlan(t, []RawStep{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	})

	report := NewRunner(exec).Run(context.Background(), p)

	if report.Success {
		t.Fatal("依赖硬失败时整体不应成功")
	}
	if exec.called("b") {
		t.Fatal("被级联跳过的步骤不应进入执行")
	}
	var skip *Failure
	for i := range report.Failures {
		if report.Failures[i].ID == "b" {
			skip = &report.Failures[i]
		}
	}
	if skip == nil || !skip.Skipped || skip.Error != "Dependency failed" {
		t.Fatalf("级联跳过记录不符合预期: %+v", report.Failures)
	}
}

func TestRunnerToleratedFailureUnblocksDependents(t *testing.T) {
	exec := &fakeExecutor{failIDs: map[string]bool{"a": true}}
	p := buildPlan(t, []RawStep{
		{ID: "a", CanFail: true},
		{ID: "b", DependsOn: []string{"a"}},
	})

	report := NewRunner(exec).Run(context.Background(), p)

	if !report.Success {
		t.Fatalf("被容忍的失败不应计入整体失败: %+v", report)
	}
	if !exec.called("b") {
		t.Fatal("下游步骤应继续执行")
	}
	result, ok := report.Results["a"]
	if !ok || result.Success {
		t.Fatalf("失败载荷应保留在结果中以供审计: %+v", result)
	}
}

func TestRunnerDeadlockedDependencies(t *testing.T) {
	exec := &fakeExecutor{}
	p := manualPlan(
		&Step{ID: "a", DependsOn: []string{"b"}},
		&Step{ID: "b", DependsOn: []string{"a"}},
	)

	report := NewRunner(exec).Run(context.Background(), p)

	if report.Success {
		t.Fatal("依赖环不应成功")
	}
	if len(exec.calls) != 0 {
		t.Fatalf("死锁步骤不应被执行: %v", exec.calls)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("两个步骤都应被记为失败: %+v", report.Failures)
	}
	for _, failure := range report.Failures {
		if failure.Error != "Deadlocked dependency" || !failure.Skipped {
			t.Fatalf("死锁记录不符合预期: %+v", failure)
		}
	}
}

func TestRunnerEmptyPlan(t *testing.T) {
	exec := &fakeExecutor{}
	sink := &recordingSink{}
	p := buildPlan(t, nil)

	report := NewRunner(exec, WithEventSink(sink)).Run(context.Background(), p)

	if !report.Success || report.StepsTotal != 0 || report.StepsCompleted != 0 {
		t.Fatalf("空计划应零波次成功: %+v", report)
	}
	if len(sink.events) != 1 {
		t.Fatalf("空计划执行后也应发送汇总事件: %d", len(sink.events))
	}
}

func TestRunnerStepTimeout(t *testing.T) {
	exec := &fakeExecutor{delays: map[string]time.Duration{"slow": time.Second}}
	p := buildPlan(t, []RawStep{{ID: "slow"}, {ID: "fast"}})

	report := NewRunner(exec, WithStepTimeout(30*time.Millisecond)).Run(context.Background(), p)

	if report.Success {
		t.Fatal("超时步骤应导致整体失败")
	}
	var failure *Failure
	for i := range report.Failures {
		if report.Failures[i].ID == "slow" {
			failure = &report.Failures[i]
		}
	}
	if failure == nil {
		t.Fatalf("超时步骤应出现在失败列表: %+v", report.Failures)
	}
	if failure.Skipped {
		t.Fatal("超时是执行后失败，不应标记 skipped")
	}
	if !strings.Contains(failure.Error, "timed out") {
		t.Fatalf("超时失败应携带超时文案: %s", failure.Error)
	}
	if _, ok := report.Results["fast"]; !ok {
		t.Fatal("同一波次的其它步骤不应被超时波及")
	}
}

func TestRunnerTimeoutRespectsCanFail(t *testing.T) {
	exec := &fakeExecutor{delays: map[string]time.Duration{"slow": time.Second}}
	p := buildPlan(t, []RawStep{
		{ID: "slow", CanFail: true},
		{ID: "after", DependsOn: []string{"slow"}},
	})

	report := NewRunner(exec, WithStepTimeout(30*time.Millisecond)).Run(context.Background(), p)

	if !report.Success {
		t.Fatalf("可容忍的超时不应导致整体失败: %+v", report)
	}
	if !exec.called("after") {
		t.Fatal("下游步骤应继续执行")
	}
}

func TestRunnerUnknownDependencyIsPreSatisfied(t *testing.T) {
	exec := &fakeExecutor{}
	p := manualPlan(&Step{ID: "a", DependsOn: []string{"not-in-plan"}})

	report := NewRunner(exec).Run(context.Background(), p)

	if !report.Success || !exec.called("a") {
		t.Fatalf("计划外依赖应视为已满足: %+v", report)
	}
}

func TestRunnerExampleScenario(t *testing.T) {
	exec := &fakeExecutor{}
	p := buildPlan(t, []RawStep{
		{ID: "s1", Tool: "t1"},
		{ID: "s2", Tool: "t2", DependsOn: []string{"s1"}},
	})

	report := NewRunner(exec).Run(context.Background(), p)

	if !report.Success || report.StepsCompleted != 2 || report.StepsFailed != 0 {
		t.Fatalf("示例场景结果不符合预期: %+v", report)
	}
	if len(report.ExecutionOrder) != 2 || report.ExecutionOrder[0] != "s1" || report.ExecutionOrder[1] != "s2" {
		t.Fatalf("执行顺序应为 [s1 s2]: %v", report.ExecutionOrder)
	}
}

func TestRunnerSinkFailureDoesNotAffectReport(t *testing.T) {
	exec := &fakeExecutor{}
	sink := &recordingSink{err: context.DeadlineExceeded}
	p := buildPlan(t, []RawStep{{ID: "a"}})

	report := NewRunner(exec, WithEventSink(sink)).Run(context.Background(), p)

	if !report.Success {
		t.Fatalf("事件投递失败不应影响报告: %+v", report)
	}
}

func TestRunnerEventSummary(t *testing.T) {
	exec := &fakeExecutor{failIDs: map[string]bool{"b": true}}
	sink := &recordingSink{}
	p := buildPlan(t, []RawStep{{ID: "a"}, {ID: "b"}})

	NewRunner(exec, WithEventSink(sink)).Run(context.Background(), p)

	if len(sink.events) != 1 {
		t.Fatalf("应收到一条汇总事件，实际 %d", len(sink.events))
	}
	event := sink.events[0]
	if event.Goal != "test goal" || event.Success || event.StepsTotal != 2 {
		t.Fatalf("事件内容不符合预期: %+v", event)
	}
}

package goal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "AgentMesh/internal/errors"
	"AgentMesh/internal/observability/alerting"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration
	failFirst int32
}

func (f *fakeExecutor) ExecuteGoal(ctx context.Context, g *Goal) (*RunReport, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	n := f.processed.Add(1)
	if n <= f.failFirst {
		return nil, xerrors.New(CodeGoalProcessing, "temporary executor failure")
	}
	return &RunReport{Success: true, StepsTotal: 1, StepsCompleted: 1, Summary: "done: " + g.Description}, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func TestProcessorHandlesConcurrentGoals(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		description := fmt.Sprintf("goal-%d", i)
		if _, err := service.Submit(ctx, SubmitRequest{Description: description}); err != nil {
			t.Fatalf("提交目标失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("目标未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{failFirst: 1}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(1))

	go func() {
		_ = processor.Start(ctx)
	}()

	g, err := service.Submit(ctx, SubmitRequest{ID: "g1", Description: "flaky goal"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, g.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusSucceeded {
		t.Fatalf("expected goal to succeed after retry, got %+v", final)
	}
	if final.Report == nil || !final.Report.Success {
		t.Fatalf("expected run report, got %+v", final.Report)
	}
	if final.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", final.Attempts)
	}
}

func TestProcessorEmitsAlertOnTerminalFailure(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	dispatcher := &recordingDispatcher{}

	if err := store.Create(ctx, &Goal{ID: "g1", Description: "doomed", Status: StatusPending, MaxRetries: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	executor := &fakeExecutor{failFirst: 10}
	processor := NewProcessor(executor, store, queue, queue,
		WithWorkerCount(1),
		WithAlertDispatcher(dispatcher),
	)

	if err := processor.handle(ctx, "g1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	g, err := store.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g.Status != StatusFailed || g.ErrorCode != string(CodeGoalProcessing) {
		t.Fatalf("unexpected goal state: %+v", g)
	}
	if dispatcher.count() != 1 {
		t.Fatalf("expected 1 alert event, got %d", dispatcher.count())
	}
	dispatcher.mu.Lock()
	event := dispatcher.events[0]
	dispatcher.mu.Unlock()
	if event.GoalID != "g1" || event.Metadata["stage"] != "terminal" {
		t.Fatalf("unexpected alert event: %+v", event)
	}
}

func TestProcessorSkipsCompletedGoal(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)

	if err := store.Create(ctx, &Goal{ID: "g1", Description: "done", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "g1", RunReport{Success: true}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	executor := &fakeExecutor{}
	processor := NewProcessor(executor, store, queue, queue)

	if err := processor.handle(ctx, "g1"); err != nil {
		t.Fatalf("已完成目标应被静默跳过: %v", err)
	}
	if executor.processed.Load() != 0 {
		t.Fatalf("executor should not run for completed goal")
	}
}

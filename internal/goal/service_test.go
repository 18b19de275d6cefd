package goal

import (
	"context"
	"errors"
	"testing"

	xerrors "AgentMesh/internal/errors"
)

type failingProducer struct {
	err error
}

func (p *failingProducer) Publish(context.Context, string) error { return p.err }
func (p *failingProducer) Close() error                          { return nil }

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(8), 3)
	if _, err := service.Submit(context.Background(), SubmitRequest{Description: "   "}); err == nil {
		t.Fatal("空描述应返回校验错误")
	} else if xerrors.CodeOf(err) != CodeGoalValidation {
		t.Fatalf("unexpected error code: %s", xerrors.CodeOf(err))
	}
}

func TestServiceSubmitDefaultsAndIdempotency(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(8), 3)
	ctx := context.Background()

	g, err := service.Submit(ctx, SubmitRequest{Description: "backup database", AgentType: "task"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if g.ID == "" {
		t.Fatal("expected generated goal ID")
	}
	if g.Priority != DefaultPriority {
		t.Fatalf("expected default priority %d, got %d", DefaultPriority, g.Priority)
	}
	if g.Status != StatusPending || g.MaxRetries != 3 {
		t.Fatalf("unexpected goal: %+v", g)
	}

	// 相同 ID 的重复提交应返回已存在的目标。
	again, err := service.Submit(ctx, SubmitRequest{ID: g.ID, Description: "something else"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again.ID != g.ID || again.Description != "backup database" {
		t.Fatalf("expected original goal back, got %+v", again)
	}
}

func TestServiceSubmitPublishFailureMarksFailed(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, &failingProducer{err: errors.New("broker down")}, 3)
	ctx := context.Background()

	_, err := service.Submit(ctx, SubmitRequest{ID: "g1", Description: "collect metrics"})
	if err == nil {
		t.Fatal("入队失败时应返回错误")
	}
	if xerrors.CodeOf(err) != CodeGoalPublish {
		t.Fatalf("unexpected error code: %s", xerrors.CodeOf(err))
	}

	g, getErr := store.Get(ctx, "g1")
	if getErr != nil {
		t.Fatalf("get after failed publish: %v", getErr)
	}
	if g.Status != StatusFailed || g.ErrorCode != string(CodeGoalPublish) {
		t.Fatalf("expected failed goal with publish code, got %+v", g)
	}
}

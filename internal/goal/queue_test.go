package goal

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := encodeEnvelope("goal-42")

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("信封应为合法 JSON: %v", err)
	}
	if env.GoalID != "goal-42" {
		t.Fatalf("期望目标 goal-42, 实际 %s", env.GoalID)
	}
	if env.EnqueuedAt <= 0 {
		t.Fatalf("期望记录入队时间, 实际 %d", env.EnqueuedAt)
	}

	goalID, wait := decodeEnvelope(payload)
	if goalID != "goal-42" {
		t.Fatalf("期望解出 goal-42, 实际 %s", goalID)
	}
	if wait < 0 || wait > time.Minute {
		t.Fatalf("等待时长不合理: %s", wait)
	}
}

func TestDecodeEnvelopeBareIDFallback(t *testing.T) {
	goalID, wait := decodeEnvelope([]byte("  legacy-goal-1\n"))
	if goalID != "legacy-goal-1" {
		t.Fatalf("裸 ID 消息应被接受, 实际 %q", goalID)
	}
	if wait != 0 {
		t.Fatalf("裸 ID 消息等待时长应为零, 实际 %s", wait)
	}

	goalID, wait = decodeEnvelope([]byte(`{"enqueued_at_ms": 123}`))
	if goalID != `{"enqueued_at_ms": 123}` || wait != 0 {
		t.Fatalf("缺少 goal_id 的 JSON 应按裸消息处理, 实际 %q/%s", goalID, wait)
	}
}

func TestDispatchSkipsEmptyPayload(t *testing.T) {
	called := false
	err := dispatch(context.Background(), "memory", []byte("  "), func(context.Context, string) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("空消息不应返回错误: %v", err)
	}
	if called {
		t.Fatal("空消息不应触发处理函数")
	}
}

func TestMemoryQueueDeliversAndClosesCleanly(t *testing.T) {
	queue := NewMemoryQueue(4)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = queue.Consume(ctx, 2, func(_ context.Context, goalID string) error {
			received <- goalID
			return nil
		})
	}()

	if err := queue.Publish(ctx, "g1"); err != nil {
		t.Fatalf("投递失败: %v", err)
	}
	if err := queue.Publish(ctx, "g2"); err != nil {
		t.Fatalf("投递失败: %v", err)
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-received:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("消费超时")
		}
	}
	if !got["g1"] || !got["g2"] {
		t.Fatalf("消费结果不完整: %v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("消费协程未退出")
	}

	if err := queue.Close(); err != nil {
		t.Fatalf("关闭队列失败: %v", err)
	}
	if err := queue.Publish(context.Background(), "g3"); err == nil {
		t.Fatal("关闭后的投递应报错")
	}
}

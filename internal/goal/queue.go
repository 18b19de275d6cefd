package goal

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"AgentMesh/internal/observability/metrics"
)

// Handler 处理来自消息队列的目标 ID。
type Handler func(ctx context.Context, goalID string) error

// Producer 负责向队列投递目标。
type Producer interface {
	Publish(ctx context.Context, goalID string) error
	Close() error
}

// Consumer 负责从队列中消费目标。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// envelope 是目标消息的线格式。除目标 ID 外携带入队时间，
// 消费侧据此观测目标在队列里的等待时长。
type envelope struct {
	GoalID     string `json:"goal_id"`
	EnqueuedAt int64  `json:"enqueued_at_ms"`
}

func encodeEnvelope(goalID string) []byte {
	payload, err := json.Marshal(envelope{
		GoalID:     goalID,
		EnqueuedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return []byte(goalID)
	}
	return payload
}

// decodeEnvelope 解析队列消息。裸目标 ID 的旧消息仍被接受，等待时长记为零。
func decodeEnvelope(payload []byte) (string, time.Duration) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var env envelope
		if err := json.Unmarshal(payload, &env); err == nil && env.GoalID != "" {
			var wait time.Duration
			if env.EnqueuedAt > 0 {
				wait = time.Since(time.UnixMilli(env.EnqueuedAt))
				if wait < 0 {
					wait = 0
				}
			}
			return env.GoalID, wait
		}
	}
	return trimmed, 0
}

// dispatch 统一各队列驱动的消费入口：上报排队时延后交给处理函数。
func dispatch(ctx context.Context, driver string, payload []byte, handler Handler) error {
	goalID, wait := decodeEnvelope(payload)
	if goalID == "" {
		return nil
	}
	metrics.ObserveGoalQueueWait(driver, wait)
	return handler(ctx, goalID)
}

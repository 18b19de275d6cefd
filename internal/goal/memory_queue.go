package goal

import (
	"context"
	"errors"
	"sync"
	"time"

	"AgentMesh/internal/observability/metrics"
)

type queuedGoal struct {
	id         string
	enqueuedAt time.Time
}

// MemoryQueue 使用 channel 模拟消息队列，主要用于测试与单机部署。
type MemoryQueue struct {
	ch     chan queuedGoal
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan queuedGoal, size)}
}

// Publish 将目标投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, goalID string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errors.New("队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- queuedGoal{id: goalID, enqueuedAt: time.Now()}:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列中的目标。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-q.ch:
					if !ok {
						return
					}
					metrics.ObserveGoalQueueWait("memory", time.Since(item.enqueuedAt))
					_ = handler(ctx, item.id)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}

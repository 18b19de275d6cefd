// Package memory 定义访问外部记忆服务的契约。事件、指标与智能体状态的
// 存储模型都在记忆服务一侧，这里只约定读写接口。
package memory

import "context"

// Event 是推送到运行记忆的一条事件。
type Event struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Category  string         `json:"category"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	Critical  bool           `json:"critical"`
}

// EventQuery 过滤最近事件。
type EventQuery struct {
	Count    int    `json:"count"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

// Service 定义了智能体使用记忆服务的能力。
type Service interface {
	PushEvent(ctx context.Context, event Event) error
	RecentEvents(ctx context.Context, query EventQuery) ([]Event, error)
	StoreState(ctx context.Context, agentID, key string, value any) error
	RecallState(ctx context.Context, agentID, key string) (any, error)
	UpdateMetric(ctx context.Context, key string, value float64) error
}

// Package orchestrator 定义与编排服务交互的客户端接口。
// 编排服务负责全局目标的登记、分发与进度追踪，体内各智能体
// 通过该接口注册自身、上报心跳，并把超出自身能力的目标委托出去。
package orchestrator

import (
	"context"
	"time"
)

// Submission 描述一次目标提交。
type Submission struct {
	Description string         `json:"description"`
	Priority    int            `json:"priority"`
	Source      string         `json:"source"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// GoalView 是编排服务视角下的目标快照。
type GoalView struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// GoalStatus 汇总一个目标的当前执行情况。
type GoalStatus struct {
	Goal            GoalView         `json:"goal"`
	Tasks           []map[string]any `json:"tasks"`
	CurrentPhase    string           `json:"current_phase"`
	ProgressPercent float64          `json:"progress_percent"`
}

// Terminal 判断目标状态是否已到达终态。
func (s GoalStatus) Terminal() bool {
	switch s.Goal.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// Registration 描述一次智能体注册。
type Registration struct {
	AgentID        string   `json:"agent_id"`
	AgentType      string   `json:"agent_type"`
	Capabilities   []string `json:"capabilities"`
	ToolNamespaces []string `json:"tool_namespaces"`
	Status         string   `json:"status"`
	RegisteredAt   int64    `json:"registered_at"`
}

// Heartbeat 描述一次心跳上报。
type Heartbeat struct {
	AgentID       string  `json:"agent_id"`
	Status        string  `json:"status"`
	CurrentTaskID string  `json:"current_task_id"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
}

// Client 是编排服务的访问接口。
type Client interface {
	// RegisterAgent 向编排服务登记一个智能体。
	RegisterAgent(ctx context.Context, reg Registration) error
	// UnregisterAgent 注销智能体。
	UnregisterAgent(ctx context.Context, agentID string) error
	// SendHeartbeat 上报智能体心跳。
	SendHeartbeat(ctx context.Context, hb Heartbeat) error
	// SubmitGoal 提交目标并返回目标 ID。
	SubmitGoal(ctx context.Context, sub Submission) (string, error)
	// GetGoalStatus 查询目标当前状态。
	GetGoalStatus(ctx context.Context, goalID string) (*GoalStatus, error)
	// WaitForGoal 轮询直到目标到达终态或超时。
	WaitForGoal(ctx context.Context, goalID string, timeout time.Duration) (*GoalStatus, error)
}

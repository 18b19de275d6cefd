// Package tools 定义对外部工具注册中心的调用契约。工具的真正执行、审计与
// 回滚语义都在注册中心一侧，这里只约定输入输出结构。
package tools

import "context"

// Invocation 描述一次工具调用请求。
type Invocation struct {
	Tool    string         `json:"tool_name"`
	AgentID string         `json:"agent_id"`
	TaskID  string         `json:"task_id"`
	Input   map[string]any `json:"input"`
	Reason  string         `json:"reason"`
}

// Result 是工具执行的结构化结果。
type Result struct {
	Success     bool           `json:"success"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Tool        string         `json:"tool"`
	ExecutionID string         `json:"execution_id,omitempty"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	BackupID    string         `json:"backup_id,omitempty"`
}

// Spec 描述注册中心内的一个可用工具。
type Spec struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Description string `json:"description"`
	Dangerous   bool   `json:"dangerous"`
}

// Invoker 定义了智能体调用工具所需的能力。
type Invoker interface {
	Execute(ctx context.Context, inv Invocation) (*Result, error)
	Rollback(ctx context.Context, executionID, reason string) error
	List(ctx context.Context, namespace string) ([]Spec, error)
}

package main

import (
	"context"
	"strings"
	"sync"
	"testing"

	"AgentMesh/internal/agent"
	"AgentMesh/internal/agents"
	"AgentMesh/internal/config"
	"AgentMesh/internal/tools"
)

type capturingInvoker struct {
	mu          sync.Mutex
	invocations []tools.Invocation
}

func (c *capturingInvoker) Execute(_ context.Context, inv tools.Invocation) (*tools.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocations = append(c.invocations, inv)
	return &tools.Result{Success: true, Tool: inv.Tool, Output: map[string]any{}}, nil
}

func (c *capturingInvoker) Rollback(context.Context, string, string) error { return nil }

func (c *capturingInvoker) List(context.Context, string) ([]tools.Spec, error) { return nil, nil }

func (c *capturingInvoker) last() (tools.Invocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.invocations) == 0 {
		return tools.Invocation{}, false
	}
	return c.invocations[len(c.invocations)-1], true
}

func TestBuildAgentsBindsCoreIdentity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	invoker := &capturingInvoker{}
	registry, err := buildAgents(ctx, &config.Config{}, agent.Collaborators{Tools: invoker})
	if err != nil {
		t.Fatalf("组装智能体失败: %v", err)
	}

	core, err := registry.Get(agents.TypeTask)
	if err != nil {
		t.Fatalf("查找任务智能体失败: %v", err)
	}

	result := core.ExecuteTask(ctx, &agent.Task{
		ID:          "t1",
		Description: "execute the plan",
		Input: map[string]any{
			"steps": []map[string]any{
				{"id": "s1", "description": "检查磁盘占用", "tool": "disk.usage"},
			},
		},
	})
	if !result.Success {
		t.Fatalf("任务执行失败: %s", result.Error)
	}

	inv, ok := invoker.last()
	if !ok {
		t.Fatal("工具未被调用")
	}
	if inv.AgentID == "" {
		t.Fatal("工具调用缺少智能体身份")
	}
	if inv.AgentID != core.ID() {
		t.Fatalf("工具调用身份 %q 与 Core ID %q 不一致", inv.AgentID, core.ID())
	}
	if !strings.HasPrefix(inv.AgentID, agents.TypeTask+"-") {
		t.Fatalf("智能体 ID 格式不符: %q", inv.AgentID)
	}
}

package goal

import (
	"context"
	"encoding/json"
	"fmt"

	"AgentMesh/internal/agent"
	xerrors "AgentMesh/internal/errors"
)

// DefaultAgentType 是目标未指定路由时使用的智能体类型。
const DefaultAgentType = "task"

// RegistryExecutor 将目标路由到本地注册表中的智能体执行。
type RegistryExecutor struct {
	registry *agent.Registry
}

// NewRegistryExecutor 构造 RegistryExecutor。
func NewRegistryExecutor(registry *agent.Registry) *RegistryExecutor {
	return &RegistryExecutor{registry: registry}
}

// ExecuteGoal 实现 Executor 接口。
func (e *RegistryExecutor) ExecuteGoal(ctx context.Context, g *Goal) (*RunReport, error) {
	if e == nil || e.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "智能体注册表未初始化")
	}
	if g == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "goal 不能为空")
	}

	agentType := g.AgentType
	if agentType == "" {
		agentType = DefaultAgentType
	}
	core, err := e.registry.Get(agentType)
	if err != nil {
		return nil, xerrors.Wrap(CodeGoalProcessing, err,
			fmt.Sprintf("没有可处理 %q 类型目标的智能体", agentType))
	}

	task := &agent.Task{
		GoalID:      g.ID,
		Description: g.Description,
		Input:       taskInputOf(g),
	}
	result := core.ExecuteTask(ctx, task)
	if result == nil {
		return nil, xerrors.New(xerrors.CodeExecutorFailure, "智能体返回了空结果")
	}
	if !result.Success {
		return nil, xerrors.New(CodeGoalProcessing, result.Error)
	}
	return reportFromOutput(result.Output), nil
}

// taskInputOf 从目标 metadata 中提取任务输入。
func taskInputOf(g *Goal) map[string]any {
	if g.Metadata == nil {
		return nil
	}
	if raw, ok := g.Metadata["input"]; ok {
		if input, ok := raw.(map[string]any); ok {
			return input
		}
	}
	return nil
}

// reportFromOutput 将智能体输出折算为执行汇总。
func reportFromOutput(output map[string]any) *RunReport {
	report := &RunReport{Success: true}
	if len(output) == 0 {
		return report
	}
	if v, ok := output["success"].(bool); ok {
		report.Success = v
	}
	report.StepsTotal = intOf(output["steps_total"])
	report.StepsCompleted = intOf(output["steps_completed"])
	report.StepsFailed = intOf(output["steps_failed"])
	if order, ok := output["execution_order"].([]string); ok {
		report.ExecutionOrder = append(report.ExecutionOrder, order...)
	} else if raw, ok := output["execution_order"].([]any); ok {
		for _, item := range raw {
			if id, ok := item.(string); ok {
				report.ExecutionOrder = append(report.ExecutionOrder, id)
			}
		}
	}
	if summary, ok := output["summary"].(string); ok && summary != "" {
		report.Summary = summary
	} else if report.StepsTotal == 0 {
		// 非计划类输出保留一份截断的 JSON 摘要。
		if encoded, err := json.Marshal(output); err == nil {
			report.Summary = truncateSummary(string(encoded), 512)
		}
	}
	return report
}

func intOf(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func truncateSummary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

var _ Executor = (*RegistryExecutor)(nil)

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"AgentMesh/internal/agent"
	"AgentMesh/internal/agent/intent"
	"AgentMesh/internal/memory"
	"AgentMesh/internal/orchestrator"
	"AgentMesh/internal/plan"
	"AgentMesh/internal/playbook"
	"AgentMesh/internal/think"
	"AgentMesh/internal/tools"
	"AgentMesh/pkg/logger"
)

// TypeTask 是任务智能体的类型名。
const TypeTask = "task"

// 任务智能体可识别的意图。
const (
	intentCreatePlan  intent.Intent = "create-plan"
	intentExecutePlan intent.Intent = "execute-plan"
	intentDelegate    intent.Intent = "delegate"
)

type taskHandlerFunc func(ctx context.Context, task *agent.Task) (map[string]any, error)

// TaskAgent 负责目标分解与计划执行。它同时实现 plan.StepExecutor：
// 带工具的步骤直接调用工具注册中心，其余步骤委派为编排服务的子目标。
type TaskAgent struct {
	agentID      string
	think        think.Client
	tools        tools.Invoker
	memory       memory.Service
	orchestrator orchestrator.Client
	playbooks    playbook.Provider

	builder        *plan.Builder
	stepTimeout    time.Duration
	subtaskTimeout time.Duration
	classifier     intent.Classifier
	dispatch       *intent.Table[taskHandlerFunc]
	logger         *slog.Logger
}

var (
	_ agent.Handler     = (*TaskAgent)(nil)
	_ plan.StepExecutor = (*TaskAgent)(nil)
)

// TaskAgentOption 配置 TaskAgent 的可选参数。
type TaskAgentOption func(*TaskAgent)

// WithPlanBuilder 覆盖默认的计划构建器。
func WithPlanBuilder(b *plan.Builder) TaskAgentOption {
	return func(a *TaskAgent) {
		if b != nil {
			a.builder = b
		}
	}
}

// WithStepTimeout 覆盖单个步骤的执行超时。
func WithStepTimeout(d time.Duration) TaskAgentOption {
	return func(a *TaskAgent) {
		if d > 0 {
			a.stepTimeout = d
		}
	}
}

// WithSubtaskTimeout 覆盖子目标委派的等待超时。
func WithSubtaskTimeout(d time.Duration) TaskAgentOption {
	return func(a *TaskAgent) {
		if d > 0 {
			a.subtaskTimeout = d
		}
	}
}

// WithPlaybooks 挂载执行手册库，命中的条目会注入规划提示词。
func WithPlaybooks(p playbook.Provider) TaskAgentOption {
	return func(a *TaskAgent) { a.playbooks = p }
}

// WithClassifier 替换默认的关键词意图分类器。
func WithClassifier(c intent.Classifier) TaskAgentOption {
	return func(a *TaskAgent) {
		if c != nil {
			a.classifier = c
		}
	}
}

// NewTaskAgent 创建任务智能体。
func NewTaskAgent(collab agent.Collaborators, opts ...TaskAgentOption) *TaskAgent {
	a := &TaskAgent{
		think:          collab.Think,
		tools:          collab.Tools,
		memory:         collab.Memory,
		orchestrator:   collab.Orchestrator,
		builder:        plan.NewBuilder(),
		stepTimeout:    plan.DefaultStepTimeout,
		subtaskTimeout: plan.DefaultStepTimeout,
		logger:         logger.Named("agents.task"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.classifier == nil {
		// 规则顺序即优先级：同时含有 execute 与 plan 的描述优先按执行处理。
		a.classifier = intent.NewKeywordClassifier([]intent.Rule{
			{Intent: intentExecutePlan, All: []string{"execute", "plan"}},
			{Intent: intentCreatePlan, Any: []string{"plan", "decompose"}},
			{Intent: intentDelegate, Any: []string{"delegate"}},
		})
	}
	a.dispatch = intent.NewTable[taskHandlerFunc](a.planAndExecute).
		Bind(intentCreatePlan, a.createPlan).
		Bind(intentExecutePlan, a.executePlan).
		Bind(intentDelegate, a.delegate)
	return a
}

// BindAgentID 记录宿主 Core 分配的智能体 ID，用于工具调用与子目标来源标识。
func (a *TaskAgent) BindAgentID(id string) { a.agentID = id }

// Type 实现 agent.Handler。
func (a *TaskAgent) Type() string { return TypeTask }

// Capabilities 实现 agent.Handler。
func (a *TaskAgent) Capabilities() []string {
	return []string{"plan_creation", "plan_execution", "delegation"}
}

// HandleTask 按意图把任务路由到具体处理器，默认分解并执行。
func (a *TaskAgent) HandleTask(ctx context.Context, task *agent.Task) (map[string]any, error) {
	in := a.classifier.Classify(task.Description)
	return a.dispatch.Resolve(in)(ctx, task)
}

// createPlan 通过推理服务把目标分解为执行计划。
func (a *TaskAgent) createPlan(ctx context.Context, task *agent.Task) (map[string]any, error) {
	p := a.buildPlan(ctx, task)
	return map[string]any{
		"goal":    task.Description,
		"plan_id": p.ID,
		"steps":   rawStepsOf(p),
	}, nil
}

func (a *TaskAgent) buildPlan(ctx context.Context, task *agent.Task) *plan.Plan {
	var raw []plan.RawStep
	if a.think != nil {
		resp, err := a.think.Infer(ctx, think.Request{
			Prompt:  a.planPrompt(task.Description),
			Level:   think.LevelTactical,
			AgentID: a.agentID,
			TaskID:  task.ID,
		})
		if err != nil {
			a.logger.Warn("规划推理失败，回退为单步计划", slog.Any("error", err))
		} else {
			raw = plan.ParseSteps(resp.Text, task.Description)
		}
	}
	if raw == nil {
		raw = plan.ParseSteps("", task.Description)
	}
	return a.builder.Build(task.Description, raw)
}

func (a *TaskAgent) planPrompt(goal string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create an execution plan for the following goal:\nGoal: %s\n\n", goal)

	if a.playbooks != nil {
		if hints := a.playbooks.Query(goal); len(hints) > 0 {
			sb.WriteString("Relevant past procedures:\n")
			for _, hint := range hints {
				fmt.Fprintf(&sb, "- %s: %s\n", hint.Title, hint.Summary)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("Return a JSON array of steps. Each step must have:\n")
	sb.WriteString("  - \"id\": unique string identifier\n")
	sb.WriteString("  - \"description\": what this step does\n")
	sb.WriteString("  - \"agent_type\": which agent should handle it (system, monitoring, task)\n")
	sb.WriteString("  - \"tool\": the tool to call (or empty if delegation)\n")
	sb.WriteString("  - \"input\": dict of input parameters\n")
	sb.WriteString("  - \"depends_on\": list of step IDs this depends on (empty list if none)\n")
	sb.WriteString("  - \"can_fail\": boolean, whether plan can continue if this step fails\n\n")
	fmt.Fprintf(&sb, "Return ONLY valid JSON, no markdown, no explanation. Max %d steps.", plan.DefaultMaxSteps)
	return sb.String()
}

// executePlan 执行任务输入中携带的既有计划。
func (a *TaskAgent) executePlan(ctx context.Context, task *agent.Task) (map[string]any, error) {
	raw, err := rawStepsFromInput(task.Input)
	if err != nil {
		return nil, err
	}
	p := a.builder.Build(task.Description, raw)
	return a.runPlan(ctx, task, p), nil
}

// planAndExecute 是默认操作：分解目标并立即执行。
func (a *TaskAgent) planAndExecute(ctx context.Context, task *agent.Task) (map[string]any, error) {
	p := a.buildPlan(ctx, task)
	result := a.runPlan(ctx, task, p)

	if a.memory != nil {
		// 整次执行存为流程记录，供后续规划检索。
		if err := a.memory.StoreState(ctx, a.agentID, "procedure:"+p.ID, result); err != nil {
			a.logger.Warn("保存执行流程失败", slog.Any("error", err))
		}
	}
	return result, nil
}

func (a *TaskAgent) runPlan(ctx context.Context, task *agent.Task, p *plan.Plan) map[string]any {
	opts := []plan.RunnerOption{plan.WithStepTimeout(a.stepTimeout)}
	if a.memory != nil {
		opts = append(opts, plan.WithEventSink(&memorySink{memory: a.memory, source: a.agentID}))
	}
	runner := plan.NewRunner(a, opts...)
	report := runner.Run(ctx, p)

	return map[string]any{
		"success":         report.Success,
		"goal":            p.Goal,
		"plan_id":         p.ID,
		"steps_total":     report.StepsTotal,
		"steps_completed": report.StepsCompleted,
		"steps_failed":    report.StepsFailed,
		"execution_order": report.ExecutionOrder,
		"results":         report.Results,
		"failures":        report.Failures,
	}
}

// delegate 把任务委派为编排服务的子目标并等待其完成。
func (a *TaskAgent) delegate(ctx context.Context, task *agent.Task) (map[string]any, error) {
	description, _ := task.Input["description"].(string)
	if description == "" {
		description = task.Description
	}
	agentType, _ := task.Input["agent_type"].(string)
	return a.delegateSubgoal(ctx, task.ID, description, agentType, task.Input)
}

func (a *TaskAgent) delegateSubgoal(ctx context.Context, parentTaskID, description, agentType string, input map[string]any) (map[string]any, error) {
	if a.orchestrator == nil {
		return map[string]any{
			"success": false,
			"error":   "没有可用的编排服务，无法委派子目标",
		}, nil
	}

	tags := []string{"subtask"}
	if agentType != "" {
		tags = append(tags, agentType)
	}
	goalID, err := a.orchestrator.SubmitGoal(ctx, orchestrator.Submission{
		Description: description,
		Priority:    5,
		Source:      a.agentID,
		Tags:        tags,
		Metadata: map[string]any{
			"parent_task_id":  parentTaskID,
			"agent_type_hint": agentType,
			"input":           input,
		},
	})
	if err != nil {
		return nil, err
	}

	status, err := a.orchestrator.WaitForGoal(ctx, goalID, a.subtaskTimeout)
	if err != nil {
		return map[string]any{
			"success": false,
			"goal_id": goalID,
			"error":   fmt.Sprintf("子目标在 %s 内未完成", a.subtaskTimeout),
		}, nil
	}
	return map[string]any{
		"success":  status.Goal.Status == "completed",
		"goal_id":  goalID,
		"status":   status.Goal.Status,
		"progress": status.ProgressPercent,
		"tasks":    status.Tasks,
	}, nil
}

// Execute 实现 plan.StepExecutor：把依赖输出注入步骤输入后，
// 带工具的步骤调用工具注册中心，其余步骤委派为子目标。
func (a *TaskAgent) Execute(ctx context.Context, step *plan.Step, completed map[string]*plan.Result) (*plan.Result, error) {
	input := make(map[string]any, len(step.Input)+len(step.DependsOn))
	for k, v := range step.Input {
		input[k] = v
	}
	for _, depID := range step.DependsOn {
		if dep, ok := completed[depID]; ok {
			input["_dep_"+depID] = dep.Output
		}
	}

	if step.Tool != "" {
		if a.tools == nil {
			return &plan.Result{
				Success: false,
				Error:   "没有可用的工具服务: " + step.Tool,
			}, nil
		}
		result, err := a.tools.Execute(ctx, tools.Invocation{
			Tool:    step.Tool,
			AgentID: a.agentID,
			Input:   input,
			Reason:  fmt.Sprintf("Plan step %s: %s", step.ID, step.Description),
		})
		if err != nil {
			return nil, err
		}
		return &plan.Result{
			Success: result.Success,
			Output:  result.Output,
			Error:   result.Error,
		}, nil
	}

	output, err := a.delegateSubgoal(ctx, step.ID, step.Description, step.AgentType, input)
	if err != nil {
		return nil, err
	}
	success, _ := output["success"].(bool)
	errText, _ := output["error"].(string)
	return &plan.Result{
		Success: success,
		Output:  output,
		Error:   errText,
	}, nil
}

// memorySink 把计划执行汇总推送到记忆服务。
type memorySink struct {
	memory memory.Service
	source string
}

func (s *memorySink) PlanExecuted(ctx context.Context, event plan.Event) error {
	return s.memory.PushEvent(ctx, memory.Event{
		Category: "plan",
		Source:   s.source,
		Critical: !event.Success,
		Data: map[string]any{
			"goal":            event.Goal,
			"steps_total":     event.StepsTotal,
			"steps_completed": event.StepsCompleted,
			"steps_failed":    event.StepsFailed,
			"success":         event.Success,
		},
	})
}

func rawStepsOf(p *plan.Plan) []plan.RawStep {
	raw := make([]plan.RawStep, 0, p.Len())
	for _, step := range p.Steps {
		raw = append(raw, plan.RawStep{
			ID:          step.ID,
			Description: step.Description,
			AgentType:   step.AgentType,
			Tool:        step.Tool,
			Input:       step.Input,
			DependsOn:   step.DependsOn,
			CanFail:     step.CanFail,
		})
	}
	return raw
}

func rawStepsFromInput(input map[string]any) ([]plan.RawStep, error) {
	value, ok := input["steps"]
	if !ok {
		return nil, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var raw []plan.RawStep
	if err := json.Unmarshal(encoded, &raw); err != nil {
		// 输入里的 steps 不是合法的步骤数组时按空计划处理。
		return nil, nil
	}
	return raw, nil
}

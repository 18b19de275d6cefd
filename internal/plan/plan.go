package plan

import "context"

// Status 表示步骤的生命周期状态。步骤只会从 pending 单向进入终态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step 是计划中的一个工作单元。
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	AgentType   string         `json:"agent_type"`
	Tool        string         `json:"tool"`
	Input       map[string]any `json:"input"`
	DependsOn   []string       `json:"depends_on"`
	CanFail     bool           `json:"can_fail"`
	Status      Status         `json:"status"`
	Result      *Result        `json:"result,omitempty"`
}

// Result 是执行一个步骤得到的结构化结果。
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Plan 是一个目标对应的全部步骤，执行期间由单个 Runner 独占。
type Plan struct {
	ID    string  `json:"plan_id"`
	Goal  string  `json:"goal"`
	Steps []*Step `json:"steps"`

	byID map[string]*Step
}

// Len 返回计划包含的步骤数量。
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// Step 按 ID 查找步骤。
func (p *Plan) Step(id string) (*Step, bool) {
	if p == nil {
		return nil, false
	}
	step, ok := p.byID[id]
	return step, ok
}

// StepExecutor 由外部协作者实现，负责真正执行一个步骤：
// 有 Tool 时直接调用工具，否则委派为子目标。completed 携带此前已完成
// 步骤的结果，实现方应在执行前把依赖输出注入到步骤输入中。
type StepExecutor interface {
	Execute(ctx context.Context, step *Step, completed map[string]*Result) (*Result, error)
}

// EventSink 在一次计划执行结束后接收汇总事件，仅用于观测。
type EventSink interface {
	PlanExecuted(ctx context.Context, event Event) error
}

// Event 汇总一次计划执行的结果。
type Event struct {
	Goal           string `json:"goal"`
	StepsTotal     int    `json:"steps_total"`
	StepsCompleted int    `json:"steps_completed"`
	StepsFailed    int    `json:"steps_failed"`
	Success        bool   `json:"success"`
}

// Failure 描述一个失败的步骤。Skipped 区分"从未执行"与"执行后失败"。
type Failure struct {
	ID      string `json:"id"`
	Error   string `json:"error"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Report 是一次计划执行的完整结果。
type Report struct {
	Success        bool               `json:"success"`
	StepsTotal     int                `json:"steps_total"`
	StepsCompleted int                `json:"steps_completed"`
	StepsFailed    int                `json:"steps_failed"`
	ExecutionOrder []string           `json:"execution_order"`
	Results        map[string]*Result `json:"results"`
	Failures       []Failure          `json:"failures"`
}

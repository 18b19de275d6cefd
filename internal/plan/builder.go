package plan

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxSteps 是计划允许的最大步骤数，超出部分被静默丢弃。
const DefaultMaxSteps = 20

// RawStep 是来自外部（通常是大模型输出）的未经校验的步骤描述。
// 所有字段都是可选的，Builder 负责补全与清洗。
type RawStep struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	AgentType   string         `json:"agent_type"`
	Tool        string         `json:"tool"`
	Input       map[string]any `json:"input"`
	DependsOn   []string       `json:"depends_on"`
	CanFail     bool           `json:"can_fail"`
}

// Builder 把不可信的步骤列表转换为合法的 Plan。
type Builder struct {
	maxSteps int
}

// BuilderOption 定义 Builder 的可选配置。
type BuilderOption func(*Builder)

// WithMaxSteps 覆盖计划允许的最大步骤数。
func WithMaxSteps(max int) BuilderOption {
	return func(b *Builder) {
		if max > 0 {
			b.maxSteps = max
		}
	}
}

// NewBuilder 构造 Builder。
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build 清洗并校验原始步骤，返回可执行的 Plan。该方法从不失败：
// 空输入或完全不可解析的输入会得到一个空 Plan，由调用方决定如何处理。
//
// 清洗规则：
//   - 截断到 maxSteps 个步骤；
//   - 缺失 ID 时合成 step_<n>；与本轮已分配的 ID 冲突时追加随机后缀；
//   - depends_on 仅保留本轮已经出现过的 ID，且不允许依赖自身，
//     其余引用静默丢弃（容忍大模型产出的噪声计划）；
//   - 所有步骤初始为 pending，结果为空。
func (b *Builder) Build(goal string, raw []RawStep) *Plan {
	if len(raw) > b.maxSteps {
		raw = raw[:b.maxSteps]
	}

	p := &Plan{
		ID:    planID(),
		Goal:  goal,
		Steps: make([]*Step, 0, len(raw)),
		byID:  make(map[string]*Step, len(raw)),
	}

	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			id = fmt.Sprintf("step_%d", len(p.Steps)+1)
		}
		if _, ok := seen[id]; ok {
			id = fmt.Sprintf("%s_%s", id, randomSuffix())
		}
		seen[id] = struct{}{}

		agentType := strings.TrimSpace(entry.AgentType)
		if agentType == "" {
			// 目标执行者缺失时归入通用类别，交由 StepExecutor 决定语义。
			agentType = "system"
		}

		deps := make([]string, 0, len(entry.DependsOn))
		for _, dep := range entry.DependsOn {
			if dep == id {
				continue
			}
			if _, ok := seen[dep]; ok {
				deps = append(deps, dep)
			}
		}

		input := entry.Input
		if input == nil {
			input = map[string]any{}
		}

		step := &Step{
			ID:          id,
			Description: entry.Description,
			AgentType:   agentType,
			Tool:        strings.TrimSpace(entry.Tool),
			Input:       input,
			DependsOn:   deps,
			CanFail:     entry.CanFail,
			Status:      StatusPending,
		}
		p.Steps = append(p.Steps, step)
		p.byID[id] = step
	}

	return p
}

func planID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}

package plan

import (
	"fmt"
	"testing"
)

func TestBuilderTruncatesToMaxSteps(t *testing.T) {
	raw := make([]RawStep, 30)
	for i := range raw {
		raw[i] = RawStep{ID: fmt.Sprintf("s%d", i), Description: "step"}
	}

	p := NewBuilder().Build("truncate", raw)
	if p.Len() != DefaultMaxSteps {
		t.Fatalf("期望 %d 个步骤，实际 %d", DefaultMaxSteps, p.Len())
	}
}

func TestBuilderDeduplicatesIDs(t *testing.T) {
	p := NewBuilder().Build("dedup", []RawStep{
		{ID: "s1", Description: "first"},
		{ID: "s1", Description: "second"},
	})

	if p.Len() != 2 {
		t.Fatalf("期望 2 个步骤，实际 %d", p.Len())
	}
	if p.Steps[0].ID == p.Steps[1].ID {
		t.Fatalf("重复 ID 未被改写: %s", p.Steps[0].ID)
	}
	if p.Steps[0].ID != "s1" {
		t.Fatalf("首个步骤应保留原 ID，实际 %s", p.Steps[0].ID)
	}
}

func TestBuilderSynthesizesMissingIDs(t *testing.T) {
	p := NewBuilder().Build("ids", []RawStep{
		{Description: "a"},
		{Description: "b"},
	})

	if p.Steps[0].ID != "step_1" || p.Steps[1].ID != "step_2" {
		t.Fatalf("合成 ID 不符合预期: %s, %s", p.Steps[0].ID, p.Steps[1].ID)
	}
}

func TestBuilderDropsInvalidDependencies(t *testing.T) {
	p := NewBuilder().Build("deps", []RawStep{
		{ID: "a", DependsOn: []string{"b", "a", "ghost"}},
		{ID: "b", DependsOn: []string{"a"}},
	})

	first, _ := p.Step("a")
	if len(first.DependsOn) != 0 {
		t.Fatalf("前向引用、自依赖与未知 ID 应被丢弃，实际 %v", first.DependsOn)
	}
	second, _ := p.Step("b")
	if len(second.DependsOn) != 1 || second.DependsOn[0] != "a" {
		t.Fatalf("合法依赖被误删: %v", second.DependsOn)
	}
}

func TestBuilderEmptyInput(t *testing.T) {
	p := NewBuilder().Build("empty", nil)
	if p.Len() != 0 {
		t.Fatalf("空输入应得到空计划，实际 %d 步", p.Len())
	}
	if p.ID == "" {
		t.Fatal("空计划也应分配 plan_id")
	}
}

func TestBuilderDefaults(t *testing.T) {
	p := NewBuilder().Build("defaults", []RawStep{{ID: "s1"}})
	step := p.Steps[0]
	if step.Status != StatusPending {
		t.Fatalf("初始状态应为 pending，实际 %s", step.Status)
	}
	if step.Result != nil {
		t.Fatal("初始结果应为空")
	}
	if step.AgentType != "system" {
		t.Fatalf("缺失的执行者类别应归入 system，实际 %s", step.AgentType)
	}
	if step.Input == nil {
		t.Fatal("输入参数应初始化为空映射")
	}
}

func TestBuilderWithMaxSteps(t *testing.T) {
	raw := []RawStep{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	p := NewBuilder(WithMaxSteps(2)).Build("cap", raw)
	if p.Len() != 2 {
		t.Fatalf("期望 2 个步骤，实际 %d", p.Len())
	}
}

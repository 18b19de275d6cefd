package plan

import "testing"

func TestParseStepsPlainJSON(t *testing.T) {
	steps := ParseSteps(`[{"id":"s1","tool":"t1","depends_on":[]}]`, "goal")
	if len(steps) != 1 || steps[0].ID != "s1" || steps[0].Tool != "t1" {
		t.Fatalf("解析结果不符合预期: %+v", steps)
	}
}

func TestParseStepsMarkdownFence(t *testing.T) {
	text := "```json\n[{\"id\":\"s1\"},{\"id\":\"s2\",\"depends_on\":[\"s1\"]}]\n```"
	steps := ParseSteps(text, "goal")
	if len(steps) != 2 || steps[1].DependsOn[0] != "s1" {
		t.Fatalf("代码块围栏未被正确剥离: %+v", steps)
	}
}

func TestParseStepsEmbeddedArray(t *testing.T) {
	text := `Here is the plan: [{"id":"s1","can_fail":true}] hope it helps`
	steps := ParseSteps(text, "goal")
	if len(steps) != 1 || !steps[0].CanFail {
		t.Fatalf("应从包裹文本中提取 JSON 数组: %+v", steps)
	}
}

func TestParseStepsFallbackSingleStep(t *testing.T) {
	steps := ParseSteps("sorry, I cannot help with that", "deploy the service")
	if len(steps) != 1 {
		t.Fatalf("不可解析输入应退化为单步计划: %+v", steps)
	}
	if steps[0].ID != "step_1" || steps[0].Description != "deploy the service" {
		t.Fatalf("退化步骤不符合预期: %+v", steps[0])
	}
	if steps[0].AgentType != "system" {
		t.Fatalf("退化步骤应归入 system: %s", steps[0].AgentType)
	}
}

package plan

import (
	"encoding/json"
	"strings"
)

// ParseSteps 从大模型返回的文本中解析步骤列表。模型经常会在 JSON 外包裹
// markdown 代码块或附加说明文字，这里按宽松策略逐级降级：
//  1. 去掉代码块围栏后直接解析；
//  2. 提取最外层的 JSON 数组再解析；
//  3. 仍然失败时退化为单步计划，把整个目标描述作为唯一步骤。
func ParseSteps(text, fallbackDescription string) []RawStep {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = stripFence(text)
	}

	var steps []RawStep
	if err := json.Unmarshal([]byte(text), &steps); err == nil {
		return steps
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &steps); err == nil {
			return steps
		}
	}

	return []RawStep{{
		ID:          "step_1",
		Description: fallbackDescription,
		AgentType:   "system",
		Input:       map[string]any{},
	}}
}

func stripFence(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return text
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

package intent

import "testing"

func TestKeywordClassifierOrder(t *testing.T) {
	c := NewKeywordClassifier([]Rule{
		{Intent: "execute-plan", All: []string{"execute", "plan"}},
		{Intent: "create-plan", Any: []string{"plan", "decompose"}},
		{Intent: "delegate", Any: []string{"delegate"}},
	})

	cases := []struct {
		text string
		want Intent
	}{
		{"execute the plan for deployment", "execute-plan"},
		{"plan the database migration", "create-plan"},
		{"decompose this goal into steps", "create-plan"},
		{"delegate to the network agent", "delegate"},
		{"restart the web service", Unknown},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %q, 期望 %q", tc.text, got, tc.want)
		}
	}
}

func TestKeywordClassifierCaseInsensitive(t *testing.T) {
	c := NewKeywordClassifier([]Rule{{Intent: "delegate", Any: []string{"Delegate"}}})
	if got := c.Classify("DELEGATE this"); got != "delegate" {
		t.Fatalf("大小写不应影响匹配, got %q", got)
	}
}

func TestTableResolveFallback(t *testing.T) {
	type handler func() string
	table := NewTable[handler](func() string { return "default" }).
		Bind("create-plan", func() string { return "plan" })

	if got := table.Resolve("create-plan")(); got != "plan" {
		t.Fatalf("已登记意图应返回其处理器, got %q", got)
	}
	if got := table.Resolve(Unknown)(); got != "default" {
		t.Fatalf("未命中意图应返回 fallback, got %q", got)
	}
	if got := table.Resolve("nonexistent")(); got != "default" {
		t.Fatalf("未登记意图应返回 fallback, got %q", got)
	}
}

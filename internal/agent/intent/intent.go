// Package intent 把自然语言任务描述归类为枚举意图。
// 分类逻辑通过 Classifier 接口与分发解耦，关键词实现可以
// 在不改动分发表的前提下替换为模型分类器。
package intent

import "strings"

// Intent 是一个枚举化的任务意图。
type Intent string

// Unknown 表示没有规则命中，调用方应回退到默认处理。
const Unknown Intent = ""

// Classifier 把任务描述映射为意图。
type Classifier interface {
	Classify(description string) Intent
}

// Rule 是一条关键词规则：All 中的关键词须全部出现，
// Any 中的关键词出现任意一个即可（为空则不要求）。
type Rule struct {
	Intent Intent
	All    []string
	Any    []string
}

// KeywordClassifier 按规则顺序做小写子串匹配，返回第一条命中的规则意图。
type KeywordClassifier struct {
	rules []Rule
}

// NewKeywordClassifier 创建关键词分类器，规则顺序即优先级。
func NewKeywordClassifier(rules []Rule) *KeywordClassifier {
	return &KeywordClassifier{rules: rules}
}

var _ Classifier = (*KeywordClassifier)(nil)

// Classify 返回第一条命中规则的意图，否则返回 Unknown。
func (c *KeywordClassifier) Classify(description string) Intent {
	text := strings.ToLower(description)
	for _, rule := range c.rules {
		if rule.matches(text) {
			return rule.Intent
		}
	}
	return Unknown
}

func (r Rule) matches(text string) bool {
	for _, kw := range r.All {
		if !strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return true
	}
	for _, kw := range r.Any {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Table 是意图到处理器的查找表，由各智能体以自身的处理函数类型实例化。
type Table[H any] struct {
	handlers map[Intent]H
	fallback H
}

// NewTable 创建查找表，fallback 在意图未登记或为 Unknown 时返回。
func NewTable[H any](fallback H) *Table[H] {
	return &Table[H]{
		handlers: make(map[Intent]H),
		fallback: fallback,
	}
}

// Bind 登记一个意图的处理器。
func (t *Table[H]) Bind(in Intent, handler H) *Table[H] {
	t.handlers[in] = handler
	return t
}

// Resolve 返回意图对应的处理器，未命中返回 fallback。
func (t *Table[H]) Resolve(in Intent) H {
	if handler, ok := t.handlers[in]; ok {
		return handler
	}
	return t.fallback
}

package think

import "context"

// Level 表示推理请求的智能级别，由 AI 运行时据此选择模型。
type Level string

const (
	// LevelReactive 用于模式匹配式的即时响应，运行时可不调用大模型。
	LevelReactive Level = "reactive"
	// LevelOperational 用于常规决策，选用小而快的模型。
	LevelOperational Level = "operational"
	// LevelTactical 用于多步推理，选用中等规模模型。
	LevelTactical Level = "tactical"
	// LevelStrategic 用于复杂规划，选用可用的最大模型。
	LevelStrategic Level = "strategic"
)

// Request 描述一次推理请求。
type Request struct {
	Prompt       string
	SystemPrompt string
	Level        Level
	MaxTokens    int
	Temperature  float64
	AgentID      string
	TaskID       string
}

// Response 是运行时返回的推理结果。
type Response struct {
	Text       string
	TokensUsed int
	ModelUsed  string
}

// Client 定义了请求 AI 运行时推理的统一接口。
type Client interface {
	Infer(ctx context.Context, req Request) (*Response, error)
}

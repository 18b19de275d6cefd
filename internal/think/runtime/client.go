// Package runtime 实现访问 AI 运行时服务的 think.Client。推理的模型管理与
// 调度在运行时一侧完成，这里只负责传输与降级默认值。
package runtime

import (
	"context"
	"strings"

	xerrors "AgentMesh/internal/errors"
	"AgentMesh/internal/peers"
	"AgentMesh/internal/think"
)

const (
	inferPath = "/v1/infer"

	defaultMaxTokens   = 1024
	defaultTemperature = 0.3
)

// Client 通过 HTTP 调用 AI 运行时。
type Client struct {
	caller *peers.Caller
}

// NewClient 创建运行时客户端。
func NewClient(cfg peers.Config) (*Client, error) {
	caller, err := peers.NewCaller(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{caller: caller}, nil
}

// Infer 请求一次推理。Level 缺失时按 operational 处理。
func (c *Client) Infer(ctx context.Context, req think.Request) (*think.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "推理 prompt 不能为空")
	}
	level := req.Level
	if level == "" {
		level = think.LevelOperational
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	payload := map[string]any{
		"prompt":             req.Prompt,
		"system_prompt":      req.SystemPrompt,
		"max_tokens":         maxTokens,
		"temperature":        temperature,
		"intelligence_level": string(level),
		"requesting_agent":   req.AgentID,
		"task_id":            req.TaskID,
	}

	var decoded struct {
		Text       string `json:"text"`
		TokensUsed int    `json:"tokens_used"`
		ModelUsed  string `json:"model_used"`
	}
	if err := c.caller.Post(ctx, inferPath, payload, &decoded); err != nil {
		return nil, err
	}
	return &think.Response{
		Text:       decoded.Text,
		TokensUsed: decoded.TokensUsed,
		ModelUsed:  decoded.ModelUsed,
	}, nil
}

var _ think.Client = (*Client)(nil)

// Package registry 实现访问工具注册中心的 tools.Invoker。
package registry

import (
	"context"
	"strings"

	xerrors "AgentMesh/internal/errors"
	"AgentMesh/internal/peers"
	"AgentMesh/internal/tools"
)

const (
	executePath  = "/v1/tools/execute"
	rollbackPath = "/v1/tools/rollback"
	listPath     = "/v1/tools/list"
)

// Client 通过 HTTP 调用工具注册中心。
type Client struct {
	caller *peers.Caller
}

// NewClient 创建注册中心客户端。
func NewClient(cfg peers.Config) (*Client, error) {
	caller, err := peers.NewCaller(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{caller: caller}, nil
}

// Execute 执行一个工具。注册中心报告的失败不作为 error 返回，而是体现在
// Result.Success 上，调用方据此决定容忍策略。
func (c *Client) Execute(ctx context.Context, inv tools.Invocation) (*tools.Result, error) {
	if strings.TrimSpace(inv.Tool) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工具名称不能为空")
	}
	if inv.Input == nil {
		inv.Input = map[string]any{}
	}

	var result tools.Result
	if err := c.caller.Post(ctx, executePath, inv, &result); err != nil {
		return nil, err
	}
	if result.Tool == "" {
		result.Tool = inv.Tool
	}
	return &result, nil
}

// Rollback 回滚一次历史执行。
func (c *Client) Rollback(ctx context.Context, executionID, reason string) error {
	if strings.TrimSpace(executionID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "execution_id 不能为空")
	}
	payload := map[string]string{
		"execution_id": executionID,
		"reason":       reason,
	}
	return c.caller.Post(ctx, rollbackPath, payload, nil)
}

// List 列出可用工具，namespace 为空时返回全部。
func (c *Client) List(ctx context.Context, namespace string) ([]tools.Spec, error) {
	payload := map[string]string{"namespace": namespace}
	var decoded struct {
		Tools []tools.Spec `json:"tools"`
	}
	if err := c.caller.Post(ctx, listPath, payload, &decoded); err != nil {
		return nil, err
	}
	return decoded.Tools, nil
}

var _ tools.Invoker = (*Client)(nil)

// Package remote 提供基于 HTTP 的编排服务客户端实现。
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	xerrors "AgentMesh/internal/errors"
	"AgentMesh/internal/orchestrator"
	"AgentMesh/internal/peers"
	"AgentMesh/pkg/logger"
)

const (
	// DefaultPollInterval 是 WaitForGoal 的轮询间隔。
	DefaultPollInterval = 2 * time.Second
	// DefaultWaitTimeout 是 WaitForGoal 的默认等待上限。
	DefaultWaitTimeout = 5 * time.Minute
)

// Client 通过 peers.Caller 访问编排服务。
type Client struct {
	caller       *peers.Caller
	pollInterval time.Duration
	logger       *slog.Logger
}

var _ orchestrator.Client = (*Client)(nil)

// Option 配置 Client 的可选参数。
type Option func(*Client)

// WithPollInterval 覆盖 WaitForGoal 的轮询间隔。
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewClient 创建编排服务客户端。
func NewClient(cfg peers.Config, opts ...Option) (*Client, error) {
	caller, err := peers.NewCaller(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		caller:       caller,
		pollInterval: DefaultPollInterval,
		logger:       logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type ackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RegisterAgent 向编排服务登记一个智能体。
func (c *Client) RegisterAgent(ctx context.Context, reg orchestrator.Registration) error {
	if reg.Status == "" {
		reg.Status = "active"
	}
	if reg.RegisteredAt == 0 {
		reg.RegisteredAt = time.Now().Unix()
	}
	if reg.ToolNamespaces == nil {
		reg.ToolNamespaces = []string{}
	}
	var resp ackResponse
	if err := c.caller.Post(ctx, "/v1/agents/register", reg, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return xerrors.New(xerrors.CodePeerUnavailable,
			fmt.Sprintf("注册智能体 %s 被拒绝: %s", reg.AgentID, resp.Message))
	}
	c.logger.Info("智能体已注册", slog.String("agent_id", reg.AgentID), slog.String("agent_type", reg.AgentType))
	return nil
}

// UnregisterAgent 注销智能体。
func (c *Client) UnregisterAgent(ctx context.Context, agentID string) error {
	payload := map[string]string{"id": agentID}
	var resp ackResponse
	if err := c.caller.Post(ctx, "/v1/agents/unregister", payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return xerrors.New(xerrors.CodePeerUnavailable,
			fmt.Sprintf("注销智能体 %s 失败: %s", agentID, resp.Message))
	}
	return nil
}

// SendHeartbeat 上报智能体心跳。
func (c *Client) SendHeartbeat(ctx context.Context, hb orchestrator.Heartbeat) error {
	if hb.Status == "" {
		hb.Status = "idle"
	}
	var resp ackResponse
	if err := c.caller.Post(ctx, "/v1/agents/heartbeat", hb, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return xerrors.New(xerrors.CodePeerUnavailable,
			fmt.Sprintf("心跳上报被拒绝: %s", resp.Message))
	}
	return nil
}

// SubmitGoal 提交目标并返回目标 ID。
func (c *Client) SubmitGoal(ctx context.Context, sub orchestrator.Submission) (string, error) {
	if sub.Priority <= 0 {
		sub.Priority = 5
	}
	if sub.Tags == nil {
		sub.Tags = []string{}
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.caller.Post(ctx, "/v1/goals", sub, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", xerrors.New(xerrors.CodePeerUnavailable, "编排服务未返回目标 ID")
	}
	c.logger.Info("目标已提交", slog.String("goal_id", resp.ID), slog.String("source", sub.Source))
	return resp.ID, nil
}

// GetGoalStatus 查询目标当前状态。
func (c *Client) GetGoalStatus(ctx context.Context, goalID string) (*orchestrator.GoalStatus, error) {
	if goalID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "目标 ID 不能为空")
	}
	var status orchestrator.GoalStatus
	if err := c.caller.Get(ctx, "/v1/goals/"+goalID, &status); err != nil {
		return nil, err
	}
	if status.CurrentPhase == "" {
		status.CurrentPhase = "unknown"
	}
	return &status, nil
}

// WaitForGoal 轮询直到目标到达终态或超时。
// 超时返回 CodeTimeout 错误，调用方可据此决定是否继续等待。
func (c *Client) WaitForGoal(ctx context.Context, goalID string, timeout time.Duration) (*orchestrator.GoalStatus, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.GetGoalStatus(waitCtx, goalID)
		if err == nil && status.Terminal() {
			return status, nil
		}
		if err != nil {
			c.logger.Warn("查询目标状态失败", slog.String("goal_id", goalID), slog.Any("error", err))
		}
		select {
		case <-waitCtx.Done():
			return nil, xerrors.Wrap(xerrors.CodeTimeout, waitCtx.Err(),
				fmt.Sprintf("目标 %s 在 %s 内未完成", goalID, timeout))
		case <-ticker.C:
		}
	}
}

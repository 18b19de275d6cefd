// Package remote 实现访问记忆服务的 memory.Service。
package remote

import (
	"context"
	"time"

	xerrors "AgentMesh/internal/errors"
	"AgentMesh/internal/memory"
	"AgentMesh/internal/peers"

	"github.com/google/uuid"
)

const (
	pushEventPath    = "/v1/memory/events/push"
	recentEventsPath = "/v1/memory/events/recent"
	storeStatePath   = "/v1/memory/state/store"
	recallStatePath  = "/v1/memory/state/recall"
	updateMetricPath = "/v1/memory/metrics/update"
)

// Client 通过 HTTP 调用记忆服务。
type Client struct {
	caller *peers.Caller
}

// NewClient 创建记忆服务客户端。
func NewClient(cfg peers.Config) (*Client, error) {
	caller, err := peers.NewCaller(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{caller: caller}, nil
}

// PushEvent 向运行记忆推送一条事件，缺失的 ID 与时间戳在此补全。
func (c *Client) PushEvent(ctx context.Context, event memory.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	return c.caller.Post(ctx, pushEventPath, event, nil)
}

// RecentEvents 查询最近事件。
func (c *Client) RecentEvents(ctx context.Context, query memory.EventQuery) ([]memory.Event, error) {
	if query.Count <= 0 {
		query.Count = 20
	}
	var decoded struct {
		Events []memory.Event `json:"events"`
	}
	if err := c.caller.Post(ctx, recentEventsPath, query, &decoded); err != nil {
		return nil, err
	}
	return decoded.Events, nil
}

// StoreState 保存智能体状态中的一个键值。
func (c *Client) StoreState(ctx context.Context, agentID, key string, value any) error {
	if agentID == "" || key == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "agent_id 与 key 不能为空")
	}
	payload := map[string]any{
		"agent_id":   agentID,
		"key":        key,
		"value":      value,
		"updated_at": time.Now().Unix(),
	}
	return c.caller.Post(ctx, storeStatePath, payload, nil)
}

// RecallState 读取智能体状态中的一个键值，未找到时返回 nil。
func (c *Client) RecallState(ctx context.Context, agentID, key string) (any, error) {
	payload := map[string]string{"agent_id": agentID, "key": key}
	var decoded struct {
		Found bool `json:"found"`
		Value any  `json:"value"`
	}
	if err := c.caller.Post(ctx, recallStatePath, payload, &decoded); err != nil {
		return nil, err
	}
	if !decoded.Found {
		return nil, nil
	}
	return decoded.Value, nil
}

// UpdateMetric 更新一个运行指标。
func (c *Client) UpdateMetric(ctx context.Context, key string, value float64) error {
	payload := map[string]any{
		"key":       key,
		"value":     value,
		"timestamp": time.Now().Unix(),
	}
	return c.caller.Post(ctx, updateMetricPath, payload, nil)
}

var _ memory.Service = (*Client)(nil)

// Package agent 提供智能体的公共运行时：身份、状态、任务执行包装、
// 心跳循环与协作服务客户端的挂载点。具体智能体实现 Handler 接口，
// 由 Core 负责其余的生命周期管理。
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"AgentMesh/internal/memory"
	"AgentMesh/internal/orchestrator"
	"AgentMesh/internal/think"
	"AgentMesh/internal/tools"
	"AgentMesh/pkg/logger"
)

// DefaultHeartbeatInterval 是心跳上报的默认间隔。
const DefaultHeartbeatInterval = 10 * time.Second

// Task 是分派给智能体的一个任务。
type Task struct {
	ID                string         `json:"id"`
	GoalID            string         `json:"goal_id"`
	Description       string         `json:"description"`
	IntelligenceLevel string         `json:"intelligence_level"`
	RequiredTools     []string       `json:"required_tools"`
	Input             map[string]any `json:"input"`
	RawInput          string         `json:"input_json,omitempty"`
}

// TaskResult 是任务执行包装器返回的统一结果。
type TaskResult struct {
	TaskID     string         `json:"task_id"`
	Success    bool           `json:"success"`
	Output     map[string]any `json:"output"`
	Error      string         `json:"error"`
	DurationMS int64          `json:"duration_ms"`
}

// Handler 是具体智能体必须实现的接口。
type Handler interface {
	// Type 返回智能体类型名，如 "task"、"monitoring"。
	Type() string
	// Capabilities 返回该智能体对外宣告的能力列表。
	Capabilities() []string
	// HandleTask 处理一个任务并返回输出。错误会被执行包装器捕获。
	HandleTask(ctx context.Context, task *Task) (map[string]any, error)
}

// Snapshot 是智能体某一时刻的状态快照。
type Snapshot struct {
	AgentID        string `json:"agent_id"`
	AgentType      string `json:"agent_type"`
	Status         string `json:"status"`
	CurrentTaskID  string `json:"current_task_id"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksFailed    int    `json:"tasks_failed"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// Collaborators 汇集智能体依赖的外部协作服务客户端。
// 字段允许为 nil，对应能力在运行期不可用。
type Collaborators struct {
	Orchestrator orchestrator.Client
	Tools        tools.Invoker
	Memory       memory.Service
	Think        think.Client
}

// Core 承载智能体的公共运行时状态。
type Core struct {
	id                string
	handler           Handler
	collab            Collaborators
	heartbeatInterval time.Duration
	logger            *slog.Logger

	mu             sync.Mutex
	currentTaskID  string
	tasksCompleted int
	tasksFailed    int
	running        bool
	startTime      time.Time
}

// Option 配置 Core 的可选参数。
type Option func(*Core)

// WithAgentID 指定智能体 ID，默认按 <type>-<uuid8> 生成。
func WithAgentID(id string) Option {
	return func(c *Core) {
		if id != "" {
			c.id = id
		}
	}
}

// WithHeartbeatInterval 覆盖心跳间隔。
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Core) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// NewCore 为一个 Handler 创建公共运行时。
func NewCore(handler Handler, collab Collaborators, opts ...Option) *Core {
	c := &Core{
		id:                fmt.Sprintf("%s-%s", handler.Type(), uuid.New().String()[:8]),
		handler:           handler,
		collab:            collab,
		heartbeatInterval: DefaultHeartbeatInterval,
		startTime:         time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Named("agent").With(
		slog.String("agent_id", c.id),
		slog.String("agent_type", handler.Type()),
	)
	return c
}

// ID 返回智能体 ID。
func (c *Core) ID() string { return c.id }

// Handler 返回挂载的具体智能体实现。
func (c *Core) Handler() Handler { return c.handler }

// Orchestrator 返回编排服务客户端，可能为 nil。
func (c *Core) Orchestrator() orchestrator.Client { return c.collab.Orchestrator }

// Tools 返回工具服务客户端，可能为 nil。
func (c *Core) Tools() tools.Invoker { return c.collab.Tools }

// Memory 返回记忆服务客户端，可能为 nil。
func (c *Core) Memory() memory.Service { return c.collab.Memory }

// Think 返回推理服务客户端，可能为 nil。
func (c *Core) Think() think.Client { return c.collab.Think }

// Status 返回当前状态快照。
func (c *Core) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := "stopped"
	if c.running {
		status = "idle"
	}
	if c.currentTaskID != "" {
		status = "busy"
	}
	return Snapshot{
		AgentID:        c.id,
		AgentType:      c.handler.Type(),
		Status:         status,
		CurrentTaskID:  c.currentTaskID,
		TasksCompleted: c.tasksCompleted,
		TasksFailed:    c.tasksFailed,
		UptimeSeconds:  int64(time.Since(c.startTime).Seconds()),
	}
}

// ExecuteTask 是 HandleTask 的执行包装：负责任务计数、耗时统计与错误捕获。
// 它不会返回错误，失败信息记录在 TaskResult 中。
func (c *Core) ExecuteTask(ctx context.Context, task *Task) *TaskResult {
	if task.ID == "" {
		task.ID = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	if task.Input == nil {
		task.Input = map[string]any{}
		if task.RawInput != "" {
			// 输入允许以原始 JSON 字符串下发，解析失败按空输入处理。
			var decoded map[string]any
			if err := json.Unmarshal([]byte(task.RawInput), &decoded); err == nil {
				task.Input = decoded
			}
		}
	}

	c.mu.Lock()
	c.currentTaskID = task.ID
	c.mu.Unlock()

	start := time.Now()
	c.logger.Info("开始执行任务",
		slog.String("task_id", task.ID),
		slog.String("description", truncate(task.Description, 80)),
	)

	output, err := c.handler.HandleTask(ctx, task)
	duration := time.Since(start).Milliseconds()

	c.mu.Lock()
	c.currentTaskID = ""
	if err != nil {
		c.tasksFailed++
	} else {
		c.tasksCompleted++
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("任务执行失败",
			slog.String("task_id", task.ID),
			slog.Int64("duration_ms", duration),
			slog.Any("error", err),
		)
		return &TaskResult{
			TaskID:     task.ID,
			Success:    false,
			Output:     map[string]any{},
			Error:      err.Error(),
			DurationMS: duration,
		}
	}

	if output == nil {
		output = map[string]any{}
	}
	c.logger.Info("任务执行完成",
		slog.String("task_id", task.ID),
		slog.Int64("duration_ms", duration),
	)
	return &TaskResult{
		TaskID:     task.ID,
		Success:    true,
		Output:     output,
		DurationMS: duration,
	}
}

// Run 执行智能体生命周期：注册、心跳循环、等待上下文取消、注销。
// 注册失败只降级为告警，智能体仍以未注册方式运行。
func (c *Core) Run(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if c.collab.Orchestrator != nil {
		reg := orchestrator.Registration{
			AgentID:      c.id,
			AgentType:    c.handler.Type(),
			Capabilities: c.handler.Capabilities(),
		}
		if err := c.collab.Orchestrator.RegisterAgent(ctx, reg); err != nil {
			c.logger.Warn("注册编排服务失败，以未注册方式运行", slog.Any("error", err))
		} else {
			defer func() {
				// 注销使用独立的短超时上下文，保证关停路径可达。
				deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := c.collab.Orchestrator.UnregisterAgent(deregCtx, c.id); err != nil {
					c.logger.Warn("注销智能体失败", slog.Any("error", err))
				}
			}()
		}
	}

	c.logger.Info("智能体开始运行")
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("智能体停止运行")
			return nil
		case <-ticker.C:
			c.sendHeartbeat(ctx)
		}
	}
}

func (c *Core) sendHeartbeat(ctx context.Context) {
	if c.collab.Orchestrator == nil {
		return
	}
	snap := c.Status()
	hb := orchestrator.Heartbeat{
		AgentID:       c.id,
		Status:        snap.Status,
		CurrentTaskID: snap.CurrentTaskID,
	}
	if err := c.collab.Orchestrator.SendHeartbeat(ctx, hb); err != nil {
		c.logger.Warn("心跳上报失败", slog.Any("error", err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

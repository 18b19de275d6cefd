package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"AgentMesh/internal/agent"
	"AgentMesh/internal/agent/intent"
	"AgentMesh/internal/memory"
	"AgentMesh/internal/think"
	"AgentMesh/internal/tools"
	"AgentMesh/pkg/logger"
)

// TypeSystem 是系统智能体的类型名。
const TypeSystem = "system"

// DefaultHealthCheckInterval 是后台健康检查的间隔。
const DefaultHealthCheckInterval = 30 * time.Second

// 健康检查的资源阈值。
const (
	cpuWarnThreshold  = 85.0
	cpuCritThreshold  = 95.0
	memWarnThreshold  = 80.0
	memCritThreshold  = 95.0
	diskWarnThreshold = 85.0
	diskCritThreshold = 95.0
)

// 系统智能体可识别的意图。
const (
	intentCheckHealth    intent.Intent = "check-health"
	intentRestartService intent.Intent = "restart-service"
	intentGetMetrics     intent.Intent = "get-metrics"
	intentListProcesses  intent.Intent = "list-processes"
)

type systemHandlerFunc func(ctx context.Context, task *agent.Task) (map[string]any, error)

// SystemAgent 负责系统健康检查、服务管理与进程巡检，
// 具体操作全部通过工具注册中心执行。
type SystemAgent struct {
	agentID string
	tools   tools.Invoker
	memory  memory.Service
	think   think.Client

	healthInterval time.Duration
	verifyDelay    time.Duration
	classifier     intent.Classifier
	dispatch       *intent.Table[systemHandlerFunc]
	logger         *slog.Logger
}

var _ agent.Handler = (*SystemAgent)(nil)

// SystemOption 配置 SystemAgent 的可选参数。
type SystemOption func(*SystemAgent)

// WithHealthCheckInterval 覆盖后台健康检查间隔。
func WithHealthCheckInterval(d time.Duration) SystemOption {
	return func(a *SystemAgent) {
		if d > 0 {
			a.healthInterval = d
		}
	}
}

// WithVerifyDelay 覆盖服务重启后进行状态确认前的等待时间。
func WithVerifyDelay(d time.Duration) SystemOption {
	return func(a *SystemAgent) {
		if d >= 0 {
			a.verifyDelay = d
		}
	}
}

// WithSystemClassifier 替换默认的关键词意图分类器。
func WithSystemClassifier(c intent.Classifier) SystemOption {
	return func(a *SystemAgent) {
		if c != nil {
			a.classifier = c
		}
	}
}

// NewSystemAgent 创建系统智能体。
func NewSystemAgent(collab agent.Collaborators, opts ...SystemOption) *SystemAgent {
	a := &SystemAgent{
		tools:          collab.Tools,
		memory:         collab.Memory,
		think:          collab.Think,
		healthInterval: DefaultHealthCheckInterval,
		verifyDelay:    2 * time.Second,
		logger:         logger.Named("agents.system"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.classifier == nil {
		a.classifier = intent.NewKeywordClassifier([]intent.Rule{
			{Intent: intentRestartService, Any: []string{"restart"}},
			{Intent: intentCheckHealth, Any: []string{"health", "check"}},
			{Intent: intentGetMetrics, Any: []string{"metric", "cpu", "ram", "memory"}},
			{Intent: intentListProcesses, Any: []string{"process", "top"}},
		})
	}
	a.dispatch = intent.NewTable[systemHandlerFunc](a.decideAction).
		Bind(intentCheckHealth, a.checkHealth).
		Bind(intentRestartService, a.restartFromTask).
		Bind(intentGetMetrics, a.getMetrics).
		Bind(intentListProcesses, a.listProcesses)
	return a
}

// BindAgentID 记录宿主 Core 分配的智能体 ID。
func (a *SystemAgent) BindAgentID(id string) { a.agentID = id }

// Type 实现 agent.Handler。
func (a *SystemAgent) Type() string { return TypeSystem }

// Capabilities 实现 agent.Handler。
func (a *SystemAgent) Capabilities() []string {
	return []string{
		"system.health_check",
		"system.restart_service",
		"monitor.cpu",
		"service.status",
		"process.list",
	}
}

// HandleTask 按意图路由系统任务，无法归类时询问推理服务。
func (a *SystemAgent) HandleTask(ctx context.Context, task *agent.Task) (map[string]any, error) {
	in := a.classifier.Classify(task.Description)
	return a.dispatch.Resolve(in)(ctx, task)
}

func (a *SystemAgent) decideAction(ctx context.Context, task *agent.Task) (map[string]any, error) {
	if a.think != nil {
		resp, err := a.think.Infer(ctx, think.Request{
			Prompt: fmt.Sprintf(
				"I received a system task: %q. Options: check_health, restart_service, "+
					"get_metrics, list_processes. Which action fits best? Reply with ONLY the action name.",
				task.Description,
			),
			Level:   think.LevelReactive,
			AgentID: a.agentID,
			TaskID:  task.ID,
		})
		if err == nil {
			action := strings.ToLower(strings.TrimSpace(resp.Text))
			switch {
			case strings.Contains(action, "restart"):
				return a.restartFromTask(ctx, task)
			case strings.Contains(action, "metric"):
				return a.getMetrics(ctx, task)
			case strings.Contains(action, "process"):
				return a.listProcesses(ctx, task)
			}
		}
	}
	return a.checkHealth(ctx, task)
}

// checkHealth 并发采集 CPU、内存与磁盘指标，评估整体健康度并检查失败服务。
func (a *SystemAgent) checkHealth(ctx context.Context, task *agent.Task) (map[string]any, error) {
	cpuPct, memPct, diskPct := a.resourceUsage(ctx)

	var issues []map[string]any
	severity := "healthy"

	raise := func(resource string, value float64, level string) {
		issues = append(issues, map[string]any{
			"resource": resource,
			"value":    value,
			"severity": level,
		})
		if level == "critical" || severity == "healthy" {
			severity = level
		}
	}

	switch {
	case cpuPct >= cpuCritThreshold:
		raise("cpu", cpuPct, "critical")
	case cpuPct >= cpuWarnThreshold:
		raise("cpu", cpuPct, "warning")
	}
	switch {
	case memPct >= memCritThreshold:
		raise("memory", memPct, "critical")
	case memPct >= memWarnThreshold:
		raise("memory", memPct, "warning")
	}
	switch {
	case diskPct >= diskCritThreshold:
		raise("disk", diskPct, "critical")
	case diskPct >= diskWarnThreshold:
		raise("disk", diskPct, "warning")
	}

	a.updateMetric(ctx, "system.cpu_percent", cpuPct)
	a.updateMetric(ctx, "system.memory_percent", memPct)
	a.updateMetric(ctx, "system.disk_percent", diskPct)

	failedServices := a.failedServices(ctx)
	if len(failedServices) > 0 {
		issues = append(issues, map[string]any{
			"resource": "services",
			"value":    failedServices,
			"severity": "warning",
		})
		if severity == "healthy" {
			severity = "warning"
		}
	}

	var recommended []string
	if severity == "critical" {
		recommended = a.remediationAdvice(ctx, task, issues, cpuPct, memPct, diskPct, failedServices)
	}

	a.pushEvent(ctx, "system.health", map[string]any{
		"severity":        severity,
		"cpu":             cpuPct,
		"memory":          memPct,
		"disk":            diskPct,
		"issues_count":    len(issues),
		"failed_services": failedServices,
	}, severity == "critical")

	if a.memory != nil {
		state := map[string]any{
			"timestamp": time.Now().Unix(),
			"severity":  severity,
			"issues":    issues,
		}
		if err := a.memory.StoreState(ctx, a.agentID, "last_health_check", state); err != nil {
			a.logger.Warn("保存健康检查记录失败", slog.Any("error", err))
		}
	}

	return map[string]any{
		"healthy":  severity == "healthy",
		"severity": severity,
		"metrics": map[string]any{
			"cpu_percent":    cpuPct,
			"memory_percent": memPct,
			"disk_percent":   diskPct,
		},
		"issues":              issues,
		"failed_services":     failedServices,
		"recommended_actions": recommended,
	}, nil
}

// resourceUsage 并发调用三个监控工具，失败的工具按 0 计。
func (a *SystemAgent) resourceUsage(ctx context.Context) (cpuPct, memPct, diskPct float64) {
	if a.tools == nil {
		return 0, 0, 0
	}

	type probe struct {
		tool   string
		input  map[string]any
		reason string
		key    string
		target *float64
	}
	probes := []probe{
		{tool: "monitor.cpu", input: map[string]any{}, reason: "Health check: CPU", key: "cpu_percent", target: &cpuPct},
		{tool: "monitor.memory", input: map[string]any{}, reason: "Health check: Memory", key: "used_percent", target: &memPct},
		{tool: "monitor.disk", input: map[string]any{"path": "/"}, reason: "Health check: Disk", key: "used_percent", target: &diskPct},
	}

	var wg sync.WaitGroup
	for i := range probes {
		p := probes[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := a.tools.Execute(ctx, tools.Invocation{
				Tool:    p.tool,
				AgentID: a.agentID,
				Input:   p.input,
				Reason:  p.reason,
			})
			if err != nil || !result.Success {
				return
			}
			if value, ok := toFloat(result.Output[p.key]); ok {
				*p.target = value
			}
		}()
	}
	wg.Wait()
	return cpuPct, memPct, diskPct
}

func (a *SystemAgent) failedServices(ctx context.Context) []string {
	if a.tools == nil {
		return nil
	}
	result, err := a.tools.Execute(ctx, tools.Invocation{
		Tool:    "service.status",
		AgentID: a.agentID,
		Input:   map[string]any{"all": true},
		Reason:  "Health check: service enumeration",
	})
	if err != nil || !result.Success {
		return nil
	}

	var failed []string
	services, _ := result.Output["services"].([]any)
	for _, item := range services {
		svc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch stringOf(svc["status"]) {
		case "failed", "dead", "inactive":
			name := stringOf(svc["name"])
			if name == "" {
				name = "unknown"
			}
			failed = append(failed, name)
		}
	}
	return failed
}

func (a *SystemAgent) remediationAdvice(ctx context.Context, task *agent.Task, issues []map[string]any, cpuPct, memPct, diskPct float64, failedServices []string) []string {
	if a.think == nil {
		return nil
	}
	resp, err := a.think.Infer(ctx, think.Request{
		Prompt: fmt.Sprintf(
			"System health is CRITICAL. Issues: %v. Current metrics: CPU=%.1f%%, MEM=%.1f%%, DISK=%.1f%%. "+
				"Failed services: %v. What immediate actions should I take? List up to 3 actions, one per line.",
			issues, cpuPct, memPct, diskPct, failedServices,
		),
		Level:   think.LevelTactical,
		AgentID: a.agentID,
		TaskID:  task.ID,
	})
	if err != nil {
		a.logger.Warn("补救建议推理失败", slog.Any("error", err))
		return nil
	}

	var actions []string
	for _, line := range strings.Split(strings.TrimSpace(resp.Text), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-0123456789.) ")
		if line != "" {
			actions = append(actions, line)
		}
		if len(actions) == 3 {
			break
		}
	}
	return actions
}

func (a *SystemAgent) restartFromTask(ctx context.Context, task *agent.Task) (map[string]any, error) {
	service := stringOf(task.Input["service"])
	if service == "" {
		service = extractServiceName(task.Description)
	}
	return a.restartService(ctx, service)
}

// restartService 先确认服务状态，必要时询问推理服务是否安全，
// 然后执行重启并验证服务恢复。
func (a *SystemAgent) restartService(ctx context.Context, service string) (map[string]any, error) {
	if service == "" || service == "unknown" {
		return map[string]any{"success": false, "error": "No service name provided"}, nil
	}
	if a.tools == nil {
		return map[string]any{"success": false, "error": "没有可用的工具服务"}, nil
	}

	previous := a.serviceStatus(ctx, service, "Pre-restart status check for "+service)

	if previous == "running" && a.think != nil {
		resp, err := a.think.Infer(ctx, think.Request{
			Prompt: fmt.Sprintf(
				"Service %q is currently running. Should I restart it? Consider: is it a critical service? "+
					"What are the risks? Answer YES or NO with a brief reason.",
				service,
			),
			Level:   think.LevelOperational,
			AgentID: a.agentID,
		})
		if err == nil && strings.Contains(strings.ToLower(firstN(resp.Text, 10)), "no") {
			return map[string]any{
				"success":         false,
				"service":         service,
				"action":          "restart_skipped",
				"reason":          strings.TrimSpace(resp.Text),
				"previous_status": previous,
			}, nil
		}
	}

	restart, err := a.tools.Execute(ctx, tools.Invocation{
		Tool:    "service.restart",
		AgentID: a.agentID,
		Input:   map[string]any{"service": service},
		Reason:  fmt.Sprintf("Restarting service %s (was: %s)", service, previous),
	})
	if err != nil {
		return nil, err
	}
	if !restart.Success {
		a.pushEvent(ctx, "service.restart_failed", map[string]any{
			"service": service,
			"error":   restart.Error,
		}, true)
		return map[string]any{
			"success":         false,
			"service":         service,
			"error":           restart.Error,
			"previous_status": previous,
		}, nil
	}

	// 给服务留出拉起时间再验证。
	select {
	case <-ctx.Done():
	case <-time.After(a.verifyDelay):
	}
	current := a.serviceStatus(ctx, service, "Post-restart verification for "+service)

	a.pushEvent(ctx, "service.restarted", map[string]any{
		"service":         service,
		"previous_status": previous,
		"new_status":      current,
	}, false)

	if a.memory != nil {
		state := map[string]any{
			"timestamp":       time.Now().Unix(),
			"previous_status": previous,
			"new_status":      current,
		}
		if err := a.memory.StoreState(ctx, a.agentID, "service_restart:"+service, state); err != nil {
			a.logger.Warn("保存重启记录失败", slog.Any("error", err))
		}
	}

	return map[string]any{
		"success":         current == "running" || current == "active",
		"service":         service,
		"previous_status": previous,
		"new_status":      current,
		"execution_id":    restart.ExecutionID,
	}, nil
}

func (a *SystemAgent) serviceStatus(ctx context.Context, service, reason string) string {
	result, err := a.tools.Execute(ctx, tools.Invocation{
		Tool:    "service.status",
		AgentID: a.agentID,
		Input:   map[string]any{"service": service},
		Reason:  reason,
	})
	if err != nil || !result.Success {
		return "unknown"
	}
	if status := stringOf(result.Output["status"]); status != "" {
		return status
	}
	return "unknown"
}

// getMetrics 采集当前系统指标并上报记忆服务。
func (a *SystemAgent) getMetrics(ctx context.Context, task *agent.Task) (map[string]any, error) {
	cpuPct, memPct, diskPct := a.resourceUsage(ctx)

	metrics := map[string]any{
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
		"disk_percent":   diskPct,
	}
	a.updateMetric(ctx, "system.cpu_percent", cpuPct)
	a.updateMetric(ctx, "system.memory_percent", memPct)
	a.updateMetric(ctx, "system.disk_percent", diskPct)

	return map[string]any{
		"success":   true,
		"metrics":   metrics,
		"timestamp": time.Now().Unix(),
	}, nil
}

// listProcesses 列出按资源占用排序的进程。
func (a *SystemAgent) listProcesses(ctx context.Context, task *agent.Task) (map[string]any, error) {
	sortBy := stringOf(task.Input["sort_by"])
	if sortBy == "" {
		sortBy = "cpu"
	}
	limit, ok := toFloat(task.Input["limit"])
	if !ok || limit <= 0 {
		limit = 20
	}

	if a.tools == nil {
		return map[string]any{"success": false, "error": "没有可用的工具服务"}, nil
	}
	result, err := a.tools.Execute(ctx, tools.Invocation{
		Tool:    "process.list",
		AgentID: a.agentID,
		TaskID:  task.ID,
		Input:   map[string]any{"sort_by": sortBy, "limit": int(limit)},
		Reason:  "Process list request",
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return map[string]any{"success": false, "error": result.Error}, nil
	}

	processes, _ := result.Output["processes"].([]any)
	return map[string]any{
		"success":       true,
		"process_count": len(processes),
		"processes":     processes,
		"sort_by":       sortBy,
	}, nil
}

// HealthLoop 周期性运行健康检查，严重时自动重启失败服务。
func (a *SystemAgent) HealthLoop(ctx context.Context) {
	ticker := time.NewTicker(a.healthInterval)
	defer ticker.Stop()

	for {
		health, err := a.checkHealth(ctx, &agent.Task{Input: map[string]any{}})
		if err != nil {
			a.logger.Error("后台健康检查失败", slog.Any("error", err))
		} else {
			switch health["severity"] {
			case "critical":
				a.logger.Error("系统健康状态严重", slog.Any("issues", health["issues"]))
				if failed, ok := health["failed_services"].([]string); ok {
					for _, svc := range failed {
						a.logger.Warn("自动重启失败服务", slog.String("service", svc))
						if _, err := a.restartService(ctx, svc); err != nil {
							a.logger.Error("自动重启失败", slog.String("service", svc), slog.Any("error", err))
						}
					}
				}
			case "warning":
				a.logger.Warn("系统健康状态告警", slog.Any("issues", health["issues"]))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *SystemAgent) pushEvent(ctx context.Context, category string, data map[string]any, critical bool) {
	if a.memory == nil {
		return
	}
	err := a.memory.PushEvent(ctx, memory.Event{
		Category: category,
		Source:   a.agentID,
		Data:     data,
		Critical: critical,
	})
	if err != nil {
		a.logger.Warn("推送事件失败", slog.String("category", category), slog.Any("error", err))
	}
}

func (a *SystemAgent) updateMetric(ctx context.Context, key string, value float64) {
	if a.memory == nil {
		return
	}
	if err := a.memory.UpdateMetric(ctx, key, value); err != nil {
		a.logger.Warn("上报指标失败", slog.String("metric", key), slog.Any("error", err))
	}
}

// extractServiceName 从自然语言描述里尽力提取服务名。
func extractServiceName(description string) string {
	keywords := map[string]bool{
		"restart": true, "service": true, "start": true,
		"stop": true, "enable": true, "disable": true,
	}
	words := strings.Fields(description)
	for i, word := range words {
		if !keywords[strings.ToLower(word)] || i+1 >= len(words) {
			continue
		}
		candidate := strings.Trim(words[i+1], ".,;:'\"")
		if candidate != "" && !keywords[strings.ToLower(candidate)] {
			return candidate
		}
	}
	return "unknown"
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

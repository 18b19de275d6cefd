package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"AgentMesh/internal/agent"
	"AgentMesh/internal/agent/intent"
	"AgentMesh/internal/memory"
	"AgentMesh/internal/think"
	"AgentMesh/internal/tools"
	"AgentMesh/pkg/logger"
)

// TypeMonitoring 是监控智能体的类型名。
const TypeMonitoring = "monitoring"

const (
	// DefaultCollectInterval 是周期性指标采集的间隔。
	DefaultCollectInterval = 30 * time.Second
	// DefaultAlertCheckInterval 是周期性告警与异常检查的间隔。
	DefaultAlertCheckInterval = 60 * time.Second

	defaultSigmaThreshold = 2.5
	defaultForecastHours  = 24
	forecastMinPoints     = 20
)

// 监控智能体可识别的意图。
const (
	intentCollectMetrics   intent.Intent = "collect-metrics"
	intentGenerateReport   intent.Intent = "generate-report"
	intentCheckAlerts      intent.Intent = "check-alerts"
	intentAnomalyDetection intent.Intent = "anomaly-detection"
	intentResourceForecast intent.Intent = "resource-forecast"
	intentDashboard        intent.Intent = "dashboard"
)

// 默认的阈值告警规则，任务输入可以整体覆盖。
var defaultAlertRules = []alertRule{
	{Metric: "cpu.usage_percent", Operator: ">", Threshold: 90, Severity: "critical", Name: "cpu_critical"},
	{Metric: "cpu.usage_percent", Operator: ">", Threshold: 80, Severity: "warning", Name: "cpu_warning"},
	{Metric: "memory.usage_percent", Operator: ">", Threshold: 95, Severity: "critical", Name: "memory_critical"},
	{Metric: "memory.usage_percent", Operator: ">", Threshold: 85, Severity: "warning", Name: "memory_warning"},
	{Metric: "disk.usage_percent", Operator: ">", Threshold: 95, Severity: "critical", Name: "disk_critical"},
	{Metric: "disk.usage_percent", Operator: ">", Threshold: 85, Severity: "warning", Name: "disk_warning"},
	{Metric: "load.1m", Operator: ">", Threshold: 8.0, Severity: "warning", Name: "load_warning"},
}

// 工具输出字段到规范指标名的映射。
var metricMappings = map[string]string{
	"cpu_percent":      "cpu.usage_percent",
	"memory_percent":   "memory.usage_percent",
	"memory_used_mb":   "memory.used_mb",
	"memory_total_mb":  "memory.total_mb",
	"disk_percent":     "disk.usage_percent",
	"disk_used_gb":     "disk.used_gb",
	"disk_total_gb":    "disk.total_gb",
	"load_1m":          "load.1m",
	"load_5m":          "load.5m",
	"load_15m":         "load.15m",
	"network_rx_bytes": "network.rx_bytes",
	"network_tx_bytes": "network.tx_bytes",
	"process_count":    "processes.count",
}

type alertRule struct {
	Metric    string  `json:"metric"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
	Severity  string  `json:"severity"`
	Name      string  `json:"name"`
}

type monitoringHandlerFunc func(ctx context.Context, task *agent.Task) (map[string]any, error)

// MonitoringAgent 负责指标基线维护、阈值告警、异常检测与容量预测。
type MonitoringAgent struct {
	agentID string
	tools   tools.Invoker
	memory  memory.Service
	think   think.Client

	state           *metricState
	collectInterval time.Duration
	alertInterval   time.Duration
	classifier      intent.Classifier
	dispatch        *intent.Table[monitoringHandlerFunc]
	startTime       time.Time
	logger          *slog.Logger
}

var _ agent.Handler = (*MonitoringAgent)(nil)

// MonitoringOption 配置 MonitoringAgent 的可选参数。
type MonitoringOption func(*MonitoringAgent)

// WithCollectInterval 覆盖指标采集间隔。
func WithCollectInterval(d time.Duration) MonitoringOption {
	return func(a *MonitoringAgent) {
		if d > 0 {
			a.collectInterval = d
		}
	}
}

// WithAlertCheckInterval 覆盖告警检查间隔。
func WithAlertCheckInterval(d time.Duration) MonitoringOption {
	return func(a *MonitoringAgent) {
		if d > 0 {
			a.alertInterval = d
		}
	}
}

// WithMonitoringClassifier 替换默认的关键词意图分类器。
func WithMonitoringClassifier(c intent.Classifier) MonitoringOption {
	return func(a *MonitoringAgent) {
		if c != nil {
			a.classifier = c
		}
	}
}

// NewMonitoringAgent 创建监控智能体。
func NewMonitoringAgent(collab agent.Collaborators, opts ...MonitoringOption) *MonitoringAgent {
	a := &MonitoringAgent{
		tools:           collab.Tools,
		memory:          collab.Memory,
		think:           collab.Think,
		state:           newMetricState(),
		collectInterval: DefaultCollectInterval,
		alertInterval:   DefaultAlertCheckInterval,
		startTime:       time.Now(),
		logger:          logger.Named("agents.monitoring"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.classifier == nil {
		a.classifier = intent.NewKeywordClassifier([]intent.Rule{
			{Intent: intentCollectMetrics, Any: []string{"collect"}},
			{Intent: intentGenerateReport, Any: []string{"report", "summary"}},
			{Intent: intentCheckAlerts, Any: []string{"alert"}},
			{Intent: intentAnomalyDetection, Any: []string{"anomal", "detect"}},
			{Intent: intentResourceForecast, Any: []string{"forecast", "predict", "capacity"}},
			{Intent: intentDashboard, Any: []string{"dashboard"}},
			{Intent: intentCollectMetrics, Any: []string{"metric"}},
		})
	}
	a.dispatch = intent.NewTable[monitoringHandlerFunc](a.decideAction).
		Bind(intentCollectMetrics, a.collectMetrics).
		Bind(intentGenerateReport, a.generateReport).
		Bind(intentCheckAlerts, a.checkAlerts).
		Bind(intentAnomalyDetection, a.anomalyDetection).
		Bind(intentResourceForecast, a.resourceForecast).
		Bind(intentDashboard, a.dashboardData)
	return a
}

// BindAgentID 记录宿主 Core 分配的智能体 ID。
func (a *MonitoringAgent) BindAgentID(id string) { a.agentID = id }

// Type 实现 agent.Handler。
func (a *MonitoringAgent) Type() string { return TypeMonitoring }

// Capabilities 实现 agent.Handler。
func (a *MonitoringAgent) Capabilities() []string {
	return []string{
		"monitoring.collect_metrics",
		"monitoring.generate_report",
		"monitoring.check_alerts",
		"monitoring.anomaly_detection",
		"monitoring.resource_forecast",
		"monitoring.dashboard_data",
	}
}

// HandleTask 按意图路由监控任务，无法归类时询问推理服务。
func (a *MonitoringAgent) HandleTask(ctx context.Context, task *agent.Task) (map[string]any, error) {
	in := a.classifier.Classify(task.Description)
	return a.dispatch.Resolve(in)(ctx, task)
}

// decideAction 在关键词全部未命中时让推理服务选择动作，默认仪表盘。
func (a *MonitoringAgent) decideAction(ctx context.Context, task *agent.Task) (map[string]any, error) {
	if a.think != nil {
		resp, err := a.think.Infer(ctx, think.Request{
			Prompt: fmt.Sprintf(
				"Monitoring task: %q. Options: collect_metrics, generate_report, check_alerts, "+
					"anomaly_detection, resource_forecast, dashboard_data. "+
					"Which action? Reply with ONLY the action name.",
				task.Description,
			),
			Level:   think.LevelReactive,
			AgentID: a.agentID,
			TaskID:  task.ID,
		})
		if err == nil {
			action := strings.ToLower(strings.TrimSpace(resp.Text))
			switch {
			case strings.Contains(action, "collect"), strings.Contains(action, "metric"):
				return a.collectMetrics(ctx, task)
			case strings.Contains(action, "report"):
				return a.generateReport(ctx, task)
			case strings.Contains(action, "alert"):
				return a.checkAlerts(ctx, task)
			case strings.Contains(action, "anomal"):
				return a.anomalyDetection(ctx, task)
			case strings.Contains(action, "forecast"):
				return a.resourceForecast(ctx, task)
			}
		}
	}
	return a.dashboardData(ctx, task)
}

// collectMetrics 调用系统指标工具，把结果写入记忆服务并更新滚动基线。
func (a *MonitoringAgent) collectMetrics(ctx context.Context, task *agent.Task) (map[string]any, error) {
	domains := stringSlice(task.Input["domains"])
	if len(domains) == 0 {
		domains = []string{"cpu", "memory", "disk", "network", "load", "processes"}
	}

	metrics := map[string]float64{}
	if a.tools != nil {
		result, err := a.tools.Execute(ctx, tools.Invocation{
			Tool:    "system.metrics",
			AgentID: a.agentID,
			TaskID:  task.ID,
			Input:   map[string]any{"categories": domains},
			Reason:  "Monitoring: periodic metric collection",
		})
		if err != nil {
			a.logger.Warn("指标采集工具调用失败", slog.Any("error", err))
		} else if result.Success {
			for srcKey, dstKey := range metricMappings {
				if value, ok := toFloat(result.Output[srcKey]); ok {
					metrics[dstKey] = value
				}
			}
		}
	}

	for key, value := range metrics {
		a.state.Observe(key, value)
		if a.memory != nil {
			if err := a.memory.UpdateMetric(ctx, key, value); err != nil {
				a.logger.Warn("上报指标失败", slog.String("metric", key), slog.Any("error", err))
			}
		}
	}

	a.pushEvent(ctx, "monitoring.metrics_collected", map[string]any{
		"metric_count": len(metrics),
		"domains":      domains,
	}, false)

	return map[string]any{
		"success":           true,
		"metrics_collected": len(metrics),
		"metrics":           metrics,
		"timestamp":         time.Now().Unix(),
	}, nil
}

// generateReport 汇总当前指标、趋势与告警，生成健康报告。
func (a *MonitoringAgent) generateReport(ctx context.Context, task *agent.Task) (map[string]any, error) {
	reportType, _ := task.Input["type"].(string)
	if reportType == "" {
		reportType = "health"
	}

	current, err := a.collectMetrics(ctx, task)
	if err != nil {
		return nil, err
	}
	metrics, _ := current["metrics"].(map[string]float64)

	var recentEvents int
	if a.memory != nil {
		events, err := a.memory.RecentEvents(ctx, memory.EventQuery{Count: 50})
		if err != nil {
			a.logger.Warn("读取最近事件失败", slog.Any("error", err))
		} else {
			recentEvents = len(events)
		}
	}

	trends := a.state.Trends()
	report := map[string]any{
		"timestamp":           time.Now().Unix(),
		"type":                reportType,
		"current_metrics":     metrics,
		"trends":              trends,
		"recent_events_count": recentEvents,
		"active_alerts":       a.state.ActiveAlerts(),
	}

	report["summary"] = a.reportSummary(ctx, task, reportType, metrics, trends, recentEvents)

	if a.memory != nil {
		state := map[string]any{
			"timestamp":    time.Now().Unix(),
			"metric_count": len(metrics),
			"alert_count":  a.state.ActiveAlertCount(),
		}
		if err := a.memory.StoreState(ctx, a.agentID, "report:"+reportType, state); err != nil {
			a.logger.Warn("保存报告记录失败", slog.Any("error", err))
		}
	}

	return map[string]any{
		"success": true,
		"report":  report,
	}, nil
}

func (a *MonitoringAgent) reportSummary(ctx context.Context, task *agent.Task, reportType string, metrics map[string]float64, trends map[string]trend, recentEvents int) string {
	if a.think == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate a %s report summary.\n\nCurrent metrics:\n", reportType)
	for _, key := range sortedKeys(metrics) {
		fmt.Fprintf(&sb, "  %s: %v\n", key, metrics[key])
	}
	sb.WriteString("\nTrends (mean -> current):\n")
	for _, key := range sortedTrendKeys(trends) {
		t := trends[key]
		fmt.Fprintf(&sb, "  %s: %v -> %v (trend: %+.2f)\n", key, t.Mean, t.Current, t.TrendDirection)
	}
	fmt.Fprintf(&sb, "\nActive alerts: %d\nRecent events: %d\n\n", a.state.ActiveAlertCount(), recentEvents)
	sb.WriteString("Provide a 3-5 sentence executive summary covering system health, notable trends, and any concerns.")

	resp, err := a.think.Infer(ctx, think.Request{
		Prompt:  sb.String(),
		Level:   think.LevelOperational,
		AgentID: a.agentID,
		TaskID:  task.ID,
	})
	if err != nil {
		a.logger.Warn("报告摘要推理失败", slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// checkAlerts 用阈值规则评估最新基线值，维护活跃告警集合。
func (a *MonitoringAgent) checkAlerts(ctx context.Context, task *agent.Task) (map[string]any, error) {
	rules := rulesFromInput(task.Input["rules"])
	if rules == nil {
		rules = defaultAlertRules
	}

	var newAlerts []map[string]any
	var resolved []string

	for _, rule := range rules {
		value, ok := a.state.Latest(rule.Metric)
		if !ok {
			continue
		}

		if ruleTriggered(rule, value) {
			alert := map[string]any{
				"name":         rule.Name,
				"metric":       rule.Metric,
				"value":        value,
				"threshold":    rule.Threshold,
				"operator":     rule.Operator,
				"severity":     rule.Severity,
				"triggered_at": time.Now().Unix(),
			}
			if a.state.TriggerAlert(rule.Name, alert) {
				newAlerts = append(newAlerts, alert)
				a.logger.Warn("触发告警",
					slog.String("alert", rule.Name),
					slog.String("metric", rule.Metric),
					slog.Float64("value", value),
					slog.Float64("threshold", rule.Threshold),
				)
			}
		} else if a.state.ResolveAlert(rule.Name) {
			resolved = append(resolved, rule.Name)
			a.logger.Info("告警已恢复", slog.String("alert", rule.Name))
		}
	}

	if len(newAlerts) > 0 {
		critical := false
		for _, alert := range newAlerts {
			if alert["severity"] == "critical" {
				critical = true
				break
			}
		}
		a.pushEvent(ctx, "monitoring.alerts_triggered", map[string]any{
			"new_alerts":   newAlerts,
			"total_active": a.state.ActiveAlertCount(),
		}, critical)
	}
	if len(resolved) > 0 {
		a.pushEvent(ctx, "monitoring.alerts_resolved", map[string]any{
			"resolved":     resolved,
			"total_active": a.state.ActiveAlertCount(),
		}, false)
	}

	return map[string]any{
		"success":         true,
		"new_alerts":      newAlerts,
		"resolved_alerts": resolved,
		"active_alerts":   a.state.ActiveAlerts(),
		"total_active":    a.state.ActiveAlertCount(),
	}, nil
}

// anomalyDetection 用 z 分数对比最新值与滚动基线。
func (a *MonitoringAgent) anomalyDetection(ctx context.Context, task *agent.Task) (map[string]any, error) {
	sigma, ok := toFloat(task.Input["sigma_threshold"])
	if !ok || sigma <= 0 {
		sigma = defaultSigmaThreshold
	}

	anomalies := a.state.Anomalies(sigma)

	analysis := ""
	if len(anomalies) > 0 {
		analysis = a.anomalyAnalysis(ctx, task, anomalies)

		critical := false
		for _, an := range anomalies {
			if an.Severity == "critical" {
				critical = true
				break
			}
		}
		a.pushEvent(ctx, "monitoring.anomalies_detected", map[string]any{
			"count":     len(anomalies),
			"anomalies": anomalies,
		}, critical)
	}

	return map[string]any{
		"success":           true,
		"anomalies_found":   len(anomalies),
		"sigma_threshold":   sigma,
		"metrics_evaluated": a.state.MetricCount(),
		"anomalies":         anomalies,
		"analysis":          analysis,
	}, nil
}

func (a *MonitoringAgent) anomalyAnalysis(ctx context.Context, task *agent.Task, anomalies []anomaly) string {
	if a.think == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Anomaly detection found %d anomalies:\n", len(anomalies))
	for _, an := range anomalies {
		fmt.Fprintf(&sb, "- %s: %v (%s baseline, z=%v)\n", an.Metric, an.CurrentValue, an.Direction, an.ZScore)
	}
	sb.WriteString("\nAre these anomalies concerning? What might cause them? Provide brief analysis and recommended actions.")

	resp, err := a.think.Infer(ctx, think.Request{
		Prompt:  sb.String(),
		Level:   think.LevelTactical,
		AgentID: a.agentID,
		TaskID:  task.ID,
	})
	if err != nil {
		a.logger.Warn("异常分析推理失败", slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// resourceForecast 用线性回归外推资源用量，标记可能触顶的指标。
func (a *MonitoringAgent) resourceForecast(ctx context.Context, task *agent.Task) (map[string]any, error) {
	forecastHours, ok := toFloat(task.Input["hours"])
	if !ok || forecastHours <= 0 {
		forecastHours = defaultForecastHours
	}
	targets := stringSlice(task.Input["metrics"])
	if len(targets) == 0 {
		targets = []string{"cpu.usage_percent", "memory.usage_percent", "disk.usage_percent"}
	}

	intervalHours := a.collectInterval.Hours()
	forecasts := make(map[string]map[string]any, len(targets))
	var warnings []string

	for _, metric := range targets {
		values := a.state.Series(metric)
		if len(values) < forecastMinPoints {
			forecasts[metric] = map[string]any{
				"insufficient_data": true,
				"data_points":       len(values),
				"minimum_required":  forecastMinPoints,
			}
			continue
		}

		slope, intercept := linearRegression(values)
		n := float64(len(values))
		futurePoints := 0.0
		if intervalHours > 0 {
			futurePoints = forecastHours / intervalHours
		}
		projected := intercept + slope*(n+futurePoints)

		capacityWarning := false
		var hoursToCapacity *float64
		if strings.Contains(metric, "percent") && slope > 0 {
			remaining := 100.0 - values[len(values)-1]
			if remaining > 0 {
				h := remaining / slope * intervalHours
				h = math.Round(h*10) / 10
				hoursToCapacity = &h
				if h < forecastHours {
					capacityWarning = true
					warnings = append(warnings, metric)
				}
			}
		}

		trendPerHour := 0.0
		if intervalHours > 0 {
			trendPerHour = math.Round(slope/intervalHours*10000) / 10000
		}
		forecast := map[string]any{
			"current":          round2(values[len(values)-1]),
			"projected":        round2(math.Max(0, projected)),
			"trend_per_hour":   trendPerHour,
			"forecast_hours":   forecastHours,
			"capacity_warning": capacityWarning,
			"data_points":      len(values),
		}
		if hoursToCapacity != nil {
			forecast["hours_to_capacity"] = *hoursToCapacity
		}
		forecasts[metric] = forecast
	}

	return map[string]any{
		"success":           true,
		"forecast_hours":    forecastHours,
		"forecasts":         forecasts,
		"capacity_warnings": warnings,
		"summary":           a.forecastSummary(ctx, task, forecastHours, forecasts),
	}, nil
}

func (a *MonitoringAgent) forecastSummary(ctx context.Context, task *agent.Task, hours float64, forecasts map[string]map[string]any) string {
	if a.think == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Resource forecast for next %vh:\n", hours)
	for metric, forecast := range forecasts {
		if insufficient, _ := forecast["insufficient_data"].(bool); insufficient {
			continue
		}
		fmt.Fprintf(&sb, "- %s: current=%v, projected=%v, trend=%v/hr",
			metric, forecast["current"], forecast["projected"], forecast["trend_per_hour"])
		if warning, _ := forecast["capacity_warning"].(bool); warning {
			fmt.Fprintf(&sb, " WARNING: capacity in %vh", forecast["hours_to_capacity"])
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nProvide a brief forecast summary with any capacity planning recommendations.")

	resp, err := a.think.Infer(ctx, think.Request{
		Prompt:  sb.String(),
		Level:   think.LevelOperational,
		AgentID: a.agentID,
		TaskID:  task.ID,
	})
	if err != nil {
		a.logger.Warn("预测摘要推理失败", slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// dashboardData 汇集仪表盘所需的当前指标、告警、事件与基线摘要。
func (a *MonitoringAgent) dashboardData(ctx context.Context, task *agent.Task) (map[string]any, error) {
	current, err := a.collectMetrics(ctx, task)
	if err != nil {
		return nil, err
	}
	alerts, err := a.checkAlerts(ctx, &agent.Task{ID: task.ID, Input: map[string]any{}})
	if err != nil {
		return nil, err
	}

	var recentEvents []memory.Event
	if a.memory != nil {
		recentEvents, err = a.memory.RecentEvents(ctx, memory.EventQuery{Count: 20})
		if err != nil {
			a.logger.Warn("读取最近事件失败", slog.Any("error", err))
			recentEvents = nil
		}
	}

	return map[string]any{
		"success":        true,
		"timestamp":      time.Now().Unix(),
		"metrics":        current["metrics"],
		"active_alerts":  alerts["active_alerts"],
		"recent_events":  recentEvents,
		"baselines":      a.state.Summaries(),
		"uptime_seconds": int64(time.Since(a.startTime).Seconds()),
	}, nil
}

// RunLoops 启动周期性采集与告警检查循环，直到上下文取消。
// 两个循环独立计时，共享同一个取消信号。
func (a *MonitoringAgent) RunLoops(ctx context.Context) {
	go a.loop(ctx, a.collectInterval, func(loopCtx context.Context) {
		if _, err := a.collectMetrics(loopCtx, &agent.Task{Input: map[string]any{}}); err != nil {
			a.logger.Error("周期性指标采集失败", slog.Any("error", err))
		}
	})
	go a.loop(ctx, a.alertInterval, func(loopCtx context.Context) {
		if _, err := a.checkAlerts(loopCtx, &agent.Task{Input: map[string]any{}}); err != nil {
			a.logger.Error("周期性告警检查失败", slog.Any("error", err))
		}
		if _, err := a.anomalyDetection(loopCtx, &agent.Task{Input: map[string]any{}}); err != nil {
			a.logger.Error("周期性异常检测失败", slog.Any("error", err))
		}
	})
}

func (a *MonitoringAgent) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *MonitoringAgent) pushEvent(ctx context.Context, category string, data map[string]any, critical bool) {
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

func ruleTriggered(rule alertRule, value float64) bool {
	switch rule.Operator {
	case ">":
		return value > rule.Threshold
	case "<":
		return value < rule.Threshold
	case ">=":
		return value >= rule.Threshold
	case "<=":
		return value <= rule.Threshold
	case "==":
		return value == rule.Threshold
	}
	return false
}

// linearRegression 返回最小二乘拟合的斜率与截距，x 取采样序号。
func linearRegression(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	xMean := (n - 1) / 2
	yMean := meanOf(values)

	var numerator, denominator float64
	for i, y := range values {
		dx := float64(i) - xMean
		numerator += dx * (y - yMean)
		denominator += dx * dx
	}
	if denominator == 0 {
		return 0, yMean
	}
	slope = numerator / denominator
	intercept = yMean - slope*xMean
	return slope, intercept
}

func rulesFromInput(value any) []alertRule {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	rules := make([]alertRule, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		threshold, _ := toFloat(entry["threshold"])
		rule := alertRule{
			Metric:    stringOf(entry["metric"]),
			Operator:  stringOf(entry["operator"]),
			Threshold: threshold,
			Severity:  stringOf(entry["severity"]),
			Name:      stringOf(entry["name"]),
		}
		if rule.Metric == "" || rule.Name == "" {
			continue
		}
		if rule.Severity == "" {
			rule.Severity = "warning"
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		return nil
	}
	return rules
}

func stringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringOf(value any) string {
	s, _ := value.(string)
	return s
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTrendKeys(m map[string]trend) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentMesh/internal/agent"
	"AgentMesh/internal/agents"
	"AgentMesh/internal/api"
	"AgentMesh/internal/config"
	"AgentMesh/internal/goal"
	memremote "AgentMesh/internal/memory/remote"
	"AgentMesh/internal/observability/alerting"
	"AgentMesh/internal/observability/metrics"
	orchremote "AgentMesh/internal/orchestrator/remote"
	"AgentMesh/internal/peers"
	"AgentMesh/internal/plan"
	"AgentMesh/internal/playbook"
	"AgentMesh/internal/storage/mysql"
	thinkruntime "AgentMesh/internal/think/runtime"
	toolsregistry "AgentMesh/internal/tools/registry"
	"AgentMesh/pkg/logger"
)

// main 是 AgentMesh 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentmeshd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENTMESH_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentmesh.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	mainLogger := logger.Named("agentmeshd")

	collab, err := buildCollaborators(cfg.Collaborators, mainLogger)
	if err != nil {
		return err
	}

	goalStore, err := buildGoalStore(cfg.GoalStore)
	if err != nil {
		return err
	}
	defer func() {
		if err := goalStore.Close(); err != nil {
			mainLogger.Warn("关闭目标存储失败", slog.Any("error", err))
		}
	}()

	goalQueue, err := buildGoalQueue(cfg.GoalQueue)
	if err != nil {
		return err
	}
	defer func() {
		if err := goalQueue.Close(); err != nil {
			mainLogger.Warn("关闭目标队列失败", slog.Any("error", err))
		}
	}()

	registry, err := buildAgents(ctx, cfg, collab)
	if err != nil {
		return err
	}

	executor, archive, err := buildExecutor(ctx, cfg.Archive, registry)
	if err != nil {
		return err
	}
	if archive != nil {
		defer func() {
			if err := archive.Close(); err != nil {
				mainLogger.Warn("关闭报告归档失败", slog.Any("error", err))
			}
		}()
	}

	goalService := goal.NewService(goalStore, goalQueue, cfg.GoalStore.MaxRetries)

	processorOpts := []goal.ProcessorOption{
		goal.WithWorkerCount(cfg.GoalQueue.Workers),
		goal.WithProcessorLogger(logger.Named("processor")),
	}
	if dispatcher := buildAlertDispatcher(cfg.Alerting, mainLogger); dispatcher != nil {
		processorOpts = append(processorOpts, goal.WithAlertDispatcher(dispatcher))
	}
	processor := goal.NewProcessor(executor, goalStore, goalQueue, goalQueue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			mainLogger.Error("目标处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				mainLogger.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, goalService, registry)

	mainLogger.Info("agentmeshd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("store", cfg.GoalStore.Driver),
		slog.String("queue", cfg.GoalQueue.Driver),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildCollaborators 按配置创建协作服务客户端，未配置地址的服务返回 nil。
func buildCollaborators(cfg config.CollaboratorsConfig, log *slog.Logger) (agent.Collaborators, error) {
	var collab agent.Collaborators

	if cfg.Orchestrator.BaseURL != "" {
		client, err := orchremote.NewClient(peerConfig(cfg.Orchestrator))
		if err != nil {
			return collab, err
		}
		collab.Orchestrator = client
	}
	if cfg.Tools.BaseURL != "" {
		client, err := toolsregistry.NewClient(peerConfig(cfg.Tools))
		if err != nil {
			return collab, err
		}
		collab.Tools = client
	}
	if cfg.Memory.BaseURL != "" {
		client, err := memremote.NewClient(peerConfig(cfg.Memory))
		if err != nil {
			return collab, err
		}
		collab.Memory = client
	}
	if cfg.Think.BaseURL != "" {
		client, err := thinkruntime.NewClient(peerConfig(cfg.Think))
		if err != nil {
			return collab, err
		}
		collab.Think = client
	}

	if collab.Orchestrator == nil {
		log.Warn("未配置编排服务，智能体以独立模式运行")
	}
	return collab, nil
}

func peerConfig(cfg config.PeerConfig) peers.Config {
	return peers.Config{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
	}
}

// buildAgents 创建三类智能体并启动其后台循环。
func buildAgents(ctx context.Context, cfg *config.Config, collab agent.Collaborators) (*agent.Registry, error) {
	taskOpts := []agents.TaskAgentOption{
		agents.WithPlanBuilder(plan.NewBuilder(plan.WithMaxSteps(cfg.Plan.MaxSteps))),
		agents.WithStepTimeout(cfg.Plan.StepTimeout()),
	}
	if cfg.Playbooks.Path != "" {
		provider, err := playbook.LoadStaticProvider(cfg.Playbooks.Path, cfg.Playbooks.MaxResults)
		if err != nil {
			return nil, err
		}
		taskOpts = append(taskOpts, agents.WithPlaybooks(provider))
	}
	taskAgent := agents.NewTaskAgent(collab, taskOpts...)

	var monitoringOpts []agents.MonitoringOption
	if interval := cfg.Agents.Monitoring.CollectIntervalSeconds; interval > 0 {
		monitoringOpts = append(monitoringOpts, agents.WithCollectInterval(time.Duration(interval)*time.Second))
	}
	if interval := cfg.Agents.Monitoring.AlertCheckIntervalSeconds; interval > 0 {
		monitoringOpts = append(monitoringOpts, agents.WithAlertCheckInterval(time.Duration(interval)*time.Second))
	}
	monitoringAgent := agents.NewMonitoringAgent(collab, monitoringOpts...)

	var systemOpts []agents.SystemOption
	if interval := cfg.Agents.System.HealthCheckIntervalSeconds; interval > 0 {
		systemOpts = append(systemOpts, agents.WithHealthCheckInterval(time.Duration(interval)*time.Second))
	}
	systemAgent := agents.NewSystemAgent(collab, systemOpts...)

	registry := agent.NewRegistry()
	heartbeat := agent.WithHeartbeatInterval(cfg.Collaborators.HeartbeatInterval())
	for _, handler := range []agent.Handler{taskAgent, monitoringAgent, systemAgent} {
		core := agent.NewCore(handler, collab, heartbeat)
		// 智能体的协作调用以 Core 分配的 ID 作为身份标识。
		if binder, ok := handler.(interface{ BindAgentID(string) }); ok {
			binder.BindAgentID(core.ID())
		}
		if err := registry.Add(core); err != nil {
			return nil, err
		}
		go func() {
			_ = core.Run(ctx)
		}()
	}

	go monitoringAgent.RunLoops(ctx)
	go systemAgent.HealthLoop(ctx)

	return registry, nil
}

func buildGoalStore(cfg config.GoalStoreConfig) (goal.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return goal.NewMemoryStore(), nil
	case "mysql":
		return goal.NewMySQLStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

func buildGoalQueue(cfg config.GoalQueueConfig) (goal.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return goal.NewMemoryQueue(1024), nil
	case "redis":
		return goal.NewRedisQueue(goal.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return goal.NewRabbitMQQueue(goal.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

// buildExecutor 组装目标执行器，按配置包裹报告归档层。
func buildExecutor(ctx context.Context, cfg config.ArchiveConfig, registry *agent.Registry) (goal.Executor, mysql.ReportArchive, error) {
	var executor goal.Executor = goal.NewRegistryExecutor(registry)

	var archive mysql.ReportArchive
	switch cfg.Driver {
	case "", "file":
		fileArchive, err := mysql.NewFileReportArchive(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		archive = fileArchive
	case "mysql":
		sqlArchive, err := mysql.NewSQLReportArchive(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		archive = sqlArchive
	case "none":
		return executor, nil, nil
	default:
		return nil, nil, fmt.Errorf("未知的归档驱动: %s", cfg.Driver)
	}

	return mysql.NewArchivingExecutor(executor, archive), archive, nil
}

func buildAlertDispatcher(cfg config.AlertingConfig, log *slog.Logger) alerting.Dispatcher {
	if cfg.WebhookURL == "" {
		return nil
	}
	sender, err := alerting.NewHTTPWebhookSender(cfg.WebhookURL)
	if err != nil {
		log.Warn("告警 Webhook 配置无效，已禁用", slog.Any("error", err))
		return nil
	}
	return alerting.NewFanout(&alerting.WebhookNotifier{Sender: sender})
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 描述了 AgentMesh 守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Collaborators CollaboratorsConfig `yaml:"collaborators"`
	GoalStore     GoalStoreConfig     `yaml:"goal_store"`
	GoalQueue     GoalQueueConfig     `yaml:"goal_queue"`
	Plan          PlanConfig          `yaml:"plan"`
	Playbooks     PlaybooksConfig     `yaml:"playbooks"`
	Agents        AgentsConfig        `yaml:"agents"`
	Alerting      AlertingConfig      `yaml:"alerting"`
	Archive       ArchiveConfig       `yaml:"archive"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `yaml:"address"`
	MetricsAddress string `yaml:"metrics_address"`
}

// LoggingConfig 控制进程级日志输出。
type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Format  string      `yaml:"format"`
	Outputs []string    `yaml:"outputs"`
	Audit   AuditConfig `yaml:"audit"`
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// PeerConfig 描述连接一个协作服务所需的参数。
type PeerConfig struct {
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

// Timeout 返回请求超时时长。
func (p PeerConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RetryDelay 返回重试间隔。
func (p PeerConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelaySeconds) * time.Second
}

// CollaboratorsConfig 汇集外部协作服务的地址。
// 留空的服务在运行期视为不可用，智能体会做降级处理。
type CollaboratorsConfig struct {
	Orchestrator     PeerConfig `yaml:"orchestrator"`
	Tools            PeerConfig `yaml:"tools"`
	Memory           PeerConfig `yaml:"memory"`
	Think            PeerConfig `yaml:"think"`
	HeartbeatSeconds int        `yaml:"heartbeat_seconds"`
}

// HeartbeatInterval 返回智能体的心跳上报间隔。
func (c CollaboratorsConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// GoalStoreConfig 描述目标存储的驱动与连接信息。
type GoalStoreConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	MaxRetries int    `yaml:"max_retries"`
}

// GoalQueueConfig 描述目标队列的驱动与参数。
type GoalQueueConfig struct {
	Driver   string         `yaml:"driver"`
	Workers  int            `yaml:"workers"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address          string `yaml:"address"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
	Queue            string `yaml:"queue"`
	BlockWaitSeconds int    `yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// PlanConfig 控制执行计划的规模与单步超时。
type PlanConfig struct {
	MaxSteps           int `yaml:"max_steps"`
	StepTimeoutSeconds int `yaml:"step_timeout_seconds"`
}

// StepTimeout 返回单步执行超时时长。
func (p PlanConfig) StepTimeout() time.Duration {
	return time.Duration(p.StepTimeoutSeconds) * time.Second
}

// PlaybooksConfig 描述本地运维预案库的加载方式。
type PlaybooksConfig struct {
	Path       string `yaml:"path"`
	MaxResults int    `yaml:"max_results"`
}

// AgentsConfig 控制各类智能体的周期性行为。
type AgentsConfig struct {
	Monitoring MonitoringAgentConfig `yaml:"monitoring"`
	System     SystemAgentConfig     `yaml:"system"`
}

// MonitoringAgentConfig 控制监控智能体的采集与告警巡检周期。
type MonitoringAgentConfig struct {
	CollectIntervalSeconds    int `yaml:"collect_interval_seconds"`
	AlertCheckIntervalSeconds int `yaml:"alert_check_interval_seconds"`
}

// SystemAgentConfig 控制系统智能体的健康巡检周期。
type SystemAgentConfig struct {
	HealthCheckIntervalSeconds int `yaml:"health_check_interval_seconds"`
}

// AlertingConfig 描述告警通知的出口。
type AlertingConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// ArchiveConfig 描述执行报告的归档后端。
type ArchiveConfig struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	DSN    string `yaml:"dsn"`
}

// Load 负责解析指定路径的 YAML 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.GoalStore.Driver == "" {
		c.GoalStore.Driver = "memory"
	}
	if c.GoalStore.MaxRetries <= 0 {
		c.GoalStore.MaxRetries = 3
	}

	if c.GoalQueue.Driver == "" {
		c.GoalQueue.Driver = "memory"
	}
	if c.GoalQueue.Workers <= 0 {
		c.GoalQueue.Workers = 4
	}

	if c.Plan.MaxSteps <= 0 {
		c.Plan.MaxSteps = 20
	}
	if c.Plan.StepTimeoutSeconds <= 0 {
		c.Plan.StepTimeoutSeconds = 60
	}

	if c.Collaborators.HeartbeatSeconds <= 0 {
		c.Collaborators.HeartbeatSeconds = 30
	}

	if c.Playbooks.Path != "" && !filepath.IsAbs(c.Playbooks.Path) {
		c.Playbooks.Path = filepath.Join(baseDir, c.Playbooks.Path)
	}
	if c.Playbooks.MaxResults <= 0 {
		c.Playbooks.MaxResults = 3
	}

	if c.Archive.Driver == "" {
		c.Archive.Driver = "file"
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Archive.Dir) {
		c.Archive.Dir = filepath.Join(baseDir, c.Archive.Dir)
	}
}

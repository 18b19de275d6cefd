package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentmesh.yaml")
	content := []byte("server:\n  address: \"\"\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("期望默认监听地址 :8080, 实际 %s", cfg.Server.Address)
	}
	if cfg.GoalStore.Driver != "memory" {
		t.Fatalf("期望默认存储驱动 memory, 实际 %s", cfg.GoalStore.Driver)
	}
	if cfg.GoalStore.MaxRetries != 3 {
		t.Fatalf("期望默认重试次数 3, 实际 %d", cfg.GoalStore.MaxRetries)
	}
	if cfg.GoalQueue.Driver != "memory" || cfg.GoalQueue.Workers != 4 {
		t.Fatalf("期望默认队列 memory/4 workers, 实际 %s/%d", cfg.GoalQueue.Driver, cfg.GoalQueue.Workers)
	}
	if cfg.Plan.MaxSteps != 20 || cfg.Plan.StepTimeout() != 60*time.Second {
		t.Fatalf("期望默认计划参数 20 步/60s, 实际 %d/%s", cfg.Plan.MaxSteps, cfg.Plan.StepTimeout())
	}
	if cfg.Collaborators.HeartbeatInterval() != 30*time.Second {
		t.Fatalf("期望默认心跳间隔 30s, 实际 %s", cfg.Collaborators.HeartbeatInterval())
	}
	if cfg.Archive.Driver != "file" {
		t.Fatalf("期望默认归档驱动 file, 实际 %s", cfg.Archive.Driver)
	}
	if cfg.Archive.Dir != filepath.Join(dir, "data") {
		t.Fatalf("期望归档目录相对配置文件解析, 实际 %s", cfg.Archive.Dir)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentmesh.yaml")
	content := []byte(`
server:
  address: ":9090"
logging:
  level: debug
  format: text
collaborators:
  orchestrator:
    base_url: http://orchestrator:8081
    timeout_seconds: 10
    max_retries: 5
  heartbeat_seconds: 15
goal_store:
  driver: mysql
  dsn: user:pass@tcp(127.0.0.1:3306)/agentmesh
  max_retries: 5
goal_queue:
  driver: redis
  workers: 8
  redis:
    address: 127.0.0.1:6379
    queue: agentmesh:goals
plan:
  max_steps: 30
  step_timeout_seconds: 120
playbooks:
  path: playbooks.yaml
  max_results: 5
alerting:
  webhook_url: https://hooks.example.com/agentmesh
archive:
  driver: mysql
  dsn: user:pass@tcp(127.0.0.1:3306)/agentmesh
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Fatalf("期望监听地址 :9090, 实际 %s", cfg.Server.Address)
	}
	if cfg.Collaborators.Orchestrator.BaseURL != "http://orchestrator:8081" {
		t.Fatalf("编排服务地址解析错误: %s", cfg.Collaborators.Orchestrator.BaseURL)
	}
	if cfg.Collaborators.Orchestrator.Timeout() != 10*time.Second {
		t.Fatalf("期望超时 10s, 实际 %s", cfg.Collaborators.Orchestrator.Timeout())
	}
	if cfg.Collaborators.HeartbeatInterval() != 15*time.Second {
		t.Fatalf("期望心跳间隔 15s, 实际 %s", cfg.Collaborators.HeartbeatInterval())
	}
	if cfg.GoalStore.Driver != "mysql" || cfg.GoalStore.MaxRetries != 5 {
		t.Fatalf("存储配置解析错误: %+v", cfg.GoalStore)
	}
	if cfg.GoalQueue.Driver != "redis" || cfg.GoalQueue.Redis.Address != "127.0.0.1:6379" {
		t.Fatalf("队列配置解析错误: %+v", cfg.GoalQueue)
	}
	if cfg.Playbooks.Path != filepath.Join(dir, "playbooks.yaml") {
		t.Fatalf("期望预案路径相对配置文件解析, 实际 %s", cfg.Playbooks.Path)
	}
	if cfg.Alerting.WebhookURL != "https://hooks.example.com/agentmesh" {
		t.Fatalf("告警配置解析错误: %s", cfg.Alerting.WebhookURL)
	}
	if cfg.Archive.Driver != "mysql" {
		t.Fatalf("归档配置解析错误: %+v", cfg.Archive)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("期望空路径报错")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("期望缺失文件报错")
	}
}

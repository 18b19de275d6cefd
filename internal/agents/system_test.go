package agents

import (
	"context"
	"testing"

	"AgentMesh/internal/agent"
	"AgentMesh/internal/tools"
)

func TestSystemAgentHealthCheckHealthy(t *testing.T) {
	toolsFake := newFakeTools()
	toolsFake.results["monitor.cpu"] = &tools.Result{Success: true, Output: map[string]any{"cpu_percent": 20.0}}
	toolsFake.results["monitor.memory"] = &tools.Result{Success: true, Output: map[string]any{"used_percent": 30.0}}
	toolsFake.results["monitor.disk"] = &tools.Result{Success: true, Output: map[string]any{"used_percent": 40.0}}
	toolsFake.results["service.status"] = &tools.Result{Success: true, Output: map[string]any{"services": []any{}}}
	memoryFake := newFakeMemory()

	a := NewSystemAgent(agent.Collaborators{Tools: toolsFake, Memory: memoryFake})
	a.BindAgentID("system-test")

	out, err := a.HandleTask(context.Background(), &agent.Task{
		Description: "run a health check",
		Input:       map[string]any{},
	})
	if err != nil {
		t.Fatalf("健康检查失败: %v", err)
	}
	if out["healthy"] != true || out["severity"] != "healthy" {
		t.Fatalf("系统应为健康状态: %+v", out)
	}
	if memoryFake.metrics["system.cpu_percent"] != 20.0 {
		t.Fatalf("指标应上报记忆服务: %+v", memoryFake.metrics)
	}
}

func TestSystemAgentHealthCheckCriticalWithFailedServices(t *testing.T) {
	toolsFake := newFakeTools()
	toolsFake.results["monitor.cpu"] = &tools.Result{Success: true, Output: map[string]any{"cpu_percent": 97.0}}
	toolsFake.results["monitor.memory"] = &tools.Result{Success: true, Output: map[string]any{"used_percent": 50.0}}
	toolsFake.results["monitor.disk"] = &tools.Result{Success: true, Output: map[string]any{"used_percent": 50.0}}
	toolsFake.results["service.status"] = &tools.Result{Success: true, Output: map[string]any{
		"services": []any{
			map[string]any{"name": "nginx", "status": "failed"},
			map[string]any{"name": "sshd", "status": "running"},
		},
	}}
	memoryFake := newFakeMemory()
	thinkFake := &fakeThink{text: "- reduce load\n- restart nginx\n- investigate"}

	a := NewSystemAgent(agent.Collaborators{Tools: toolsFake, Memory: memoryFake, Think: thinkFake})
	a.BindAgentID("system-test")

	out, err := a.checkHealth(context.Background(), &agent.Task{Input: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if out["severity"] != "critical" {
		t.Fatalf("CPU 97%% 应为 critical: %+v", out)
	}
	failed, _ := out["failed_services"].([]string)
	if len(failed) != 1 || failed[0] != "nginx" {
		t.Fatalf("失败服务列表不符: %v", failed)
	}
	actions, _ := out["recommended_actions"].([]string)
	if len(actions) != 3 {
		t.Fatalf("应给出 3 条补救建议, got %v", actions)
	}

	// 严重状态应推送 critical 事件
	criticalPushed := false
	for _, event := range memoryFake.events {
		if event.Category == "system.health" && event.Critical {
			criticalPushed = true
		}
	}
	if !criticalPushed {
		t.Fatal("应推送 critical 健康事件")
	}
}

func TestSystemAgentRestartService(t *testing.T) {
	toolsFake := newFakeTools()
	toolsFake.results["service.status"] = &tools.Result{Success: true, Output: map[string]any{"status": "failed"}}
	toolsFake.results["service.restart"] = &tools.Result{Success: true, Output: map[string]any{}, ExecutionID: "exec-1"}

	a := NewSystemAgent(agent.Collaborators{Tools: toolsFake}, WithVerifyDelay(0))
	a.BindAgentID("system-test")

	out, err := a.restartService(context.Background(), "nginx")
	if err != nil {
		t.Fatal(err)
	}
	// 验证阶段的状态仍是 failed，重启视为未成功
	if out["success"] != false {
		t.Fatalf("服务未恢复时应判定失败: %+v", out)
	}
	if out["execution_id"] != "exec-1" {
		t.Fatalf("应透出工具执行 ID: %+v", out)
	}
	if toolsFake.callCount("service.restart") != 1 {
		t.Fatal("应执行一次重启")
	}
}

func TestSystemAgentRestartSkippedBySafetyCheck(t *testing.T) {
	toolsFake := newFakeTools()
	toolsFake.results["service.status"] = &tools.Result{Success: true, Output: map[string]any{"status": "running"}}
	thinkFake := &fakeThink{text: "NO, this is a critical service"}

	a := NewSystemAgent(agent.Collaborators{Tools: toolsFake, Think: thinkFake}, WithVerifyDelay(0))
	a.BindAgentID("system-test")

	out, err := a.restartService(context.Background(), "sshd")
	if err != nil {
		t.Fatal(err)
	}
	if out["action"] != "restart_skipped" {
		t.Fatalf("安全检查否决时应跳过重启: %+v", out)
	}
	if toolsFake.callCount("service.restart") != 0 {
		t.Fatal("被否决后不应执行重启")
	}
}

func TestSystemAgentRestartWithoutServiceName(t *testing.T) {
	a := NewSystemAgent(agent.Collaborators{})
	out, err := a.restartService(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if out["success"] != false {
		t.Fatalf("缺少服务名应失败: %+v", out)
	}
}

func TestSystemAgentListProcesses(t *testing.T) {
	toolsFake := newFakeTools()
	toolsFake.results["process.list"] = &tools.Result{Success: true, Output: map[string]any{
		"processes": []any{
			map[string]any{"pid": 1, "name": "init"},
			map[string]any{"pid": 42, "name": "agentmeshd"},
		},
	}}

	a := NewSystemAgent(agent.Collaborators{Tools: toolsFake})
	a.BindAgentID("system-test")

	out, err := a.HandleTask(context.Background(), &agent.Task{
		Description: "show top processes",
		Input:       map[string]any{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out["process_count"] != 2 {
		t.Fatalf("进程数量不符: %+v", out)
	}
	if out["sort_by"] != "cpu" {
		t.Fatalf("默认排序应为 cpu: %v", out["sort_by"])
	}
}

func TestExtractServiceName(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"restart nginx now", "nginx"},
		{"please restart the-db-service.", "the-db-service"},
		{"restart service postgres", "postgres"},
		{"do something else", "unknown"},
	}
	for _, tc := range cases {
		if got := extractServiceName(tc.text); got != tc.want {
			t.Errorf("extractServiceName(%q) = %q, 期望 %q", tc.text, got, tc.want)
		}
	}
}

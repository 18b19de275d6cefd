package goal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	goals := []*Goal{
		{ID: "g1", Description: "backup database", AgentType: "task", Status: StatusPending, MaxRetries: 3},
		{ID: "g2", Description: "restart nginx", AgentType: "system", Status: StatusFailed, MaxRetries: 3},
		{ID: "g3", Description: "collect metrics", AgentType: "monitoring", Status: StatusSucceeded, MaxRetries: 3},
	}

	for _, g := range goals {
		if err := store.Create(ctx, g); err != nil {
			t.Fatalf("create goal %s: %v", g.ID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "g2", CodeGoalProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "g3", RunReport{Success: true, StepsTotal: 2, StepsCompleted: 2}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.goals["g1"].UpdatedAt = base.Unix()
	store.goals["g2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.goals["g3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 goals, got %d", len(all))
	}
	if all[0].ID != "g3" {
		t.Fatalf("expected newest goal first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "g2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	system, err := store.List(ctx, buildListOptions([]ListOption{WithAgentTypes("system")}))
	if err != nil {
		t.Fatalf("list by agent type: %v", err)
	}
	if len(system) != 1 || system[0].ID != "g2" {
		t.Fatalf("unexpected agent type list: %+v", system)
	}

	reported, err := store.List(ctx, buildListOptions([]ListOption{WithReportPresence(true)}))
	if err != nil {
		t.Fatalf("list with report: %v", err)
	}
	if len(reported) != 1 || reported[0].ID != "g3" {
		t.Fatalf("unexpected report list: %+v", reported)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 goals to match since filter, got %d", len(recent))
	}

	matched, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("nginx")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "g2" {
		t.Fatalf("unexpected query list: %+v", matched)
	}
}

func TestMemoryStoreClaimStateMachine(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Goal{ID: "g1", Description: "d", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Claim(ctx, "g1")
	if err != nil {
		t.Fatalf("首次领取不应失败: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed goal: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "g1"); !errors.Is(err, ErrGoalConflict) {
		t.Fatalf("运行中的目标应返回冲突, got %v", err)
	}

	if err := store.MarkFailed(ctx, "g1", CodeGoalProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "g1"); err != nil {
		t.Fatalf("失败后的目标应可再次领取: %v", err)
	}

	if err := store.MarkFailed(ctx, "g1", CodeGoalProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed again: %v", err)
	}
	if _, err := store.Claim(ctx, "g1"); !errors.Is(err, ErrGoalExhausted) {
		t.Fatalf("重试耗尽后应返回 exhausted, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "g1", RunReport{Success: true}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "g1"); !errors.Is(err, ErrGoalCompleted) {
		t.Fatalf("已完成的目标应返回 completed, got %v", err)
	}

	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrGoalNotFound) {
		t.Fatalf("不存在的目标应返回 not found, got %v", err)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	goals := []*Goal{
		{ID: "a", Description: "d1", Status: StatusPending, MaxRetries: 3},
		{ID: "b", Description: "d2", Status: StatusPending, MaxRetries: 3},
		{ID: "c", Description: "d3", Status: StatusPending, MaxRetries: 3},
	}

	for _, g := range goals {
		if err := store.Create(ctx, g); err != nil {
			t.Fatalf("create goal %s: %v", g.ID, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "b", CodeGoalProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", RunReport{Success: true, Summary: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.goals["a"].UpdatedAt = base.Unix()
	store.goals["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.goals["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withReports, err := store.Stats(ctx, buildListOptions([]ListOption{WithReportPresence(true)}))
	if err != nil {
		t.Fatalf("stats with report: %v", err)
	}
	if withReports.Total != 1 || withReports.Succeeded != 1 {
		t.Fatalf("unexpected stats with report: %+v", withReports)
	}

	withoutReports, err := store.Stats(ctx, buildListOptions([]ListOption{WithReportPresence(false)}))
	if err != nil {
		t.Fatalf("stats without report: %v", err)
	}
	if withoutReports.Total != 2 || withoutReports.Pending != 1 || withoutReports.Failed != 1 {
		t.Fatalf("unexpected stats without report: %+v", withoutReports)
	}
}

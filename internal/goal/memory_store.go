package goal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "AgentMesh/internal/errors"
)

// MemoryStore 以内存方式保存目标状态，主要用于测试。
type MemoryStore struct {
	mu    sync.RWMutex
	goals map[string]*Goal
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{goals: make(map[string]*Goal)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, g *Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "goal 不能为空")
	}
	if g.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "目标 ID 不能为空")
	}
	if _, ok := m.goals[g.ID]; ok {
		return ErrGoalConflict
	}
	now := time.Now().Unix()
	if g.CreatedAt == 0 {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	m.goals[g.ID] = cloneGoal(g)
	return nil
}

// Get 返回目标。
func (m *MemoryStore) Get(_ context.Context, id string) (*Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.goals[id]
	if !ok {
		return nil, ErrGoalNotFound
	}
	return cloneGoal(g), nil
}

// Claim 将目标状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return nil, ErrGoalNotFound
	}
	switch g.Status {
	case StatusSucceeded:
		return cloneGoal(g), ErrGoalCompleted
	case StatusRunning:
		return cloneGoal(g), ErrGoalConflict
	}
	if g.Attempts >= g.MaxRetries {
		return cloneGoal(g), ErrGoalExhausted
	}
	g.Status = StatusRunning
	g.Attempts++
	g.LastError = ""
	g.ErrorCode = ""
	g.UpdatedAt = time.Now().Unix()
	return cloneGoal(g), nil
}

// MarkSucceeded 记录成功结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, report RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return ErrGoalNotFound
	}
	g.Status = StatusSucceeded
	g.Report = &report
	g.LastError = ""
	g.ErrorCode = ""
	g.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记目标失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return ErrGoalNotFound
	}
	g.Status = StatusFailed
	g.LastError = lastError
	g.ErrorCode = string(code)
	g.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回符合过滤条件的目标。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Goal, 0, len(m.goals))
	for _, g := range m.goals {
		if !matchesListFilters(g, opts) {
			continue
		}
		results = append(results, cloneGoal(g))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset >= len(results) {
		return []*Goal{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的目标数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (GoalStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := GoalStats{}
	for _, g := range m.goals {
		if !matchesListFilters(g, opts) {
			continue
		}
		stats.Total++
		switch g.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
		if g.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = g.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (g.UpdatedAt != 0 && g.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = g.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneGoal(g *Goal) *Goal {
	clone := *g
	if g.Report != nil {
		reportCopy := *g.Report
		reportCopy.ExecutionOrder = cloneTags(g.Report.ExecutionOrder)
		clone.Report = &reportCopy
	}
	clone.Tags = cloneTags(g.Tags)
	clone.Metadata = cloneMetadata(g.Metadata)
	return &clone
}

func matchesListFilters(g *Goal, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if g.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(opts.AgentTypes) > 0 {
		matched := false
		for _, agentType := range opts.AgentTypes {
			if g.AgentType == agentType {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.UpdatedGTE > 0 && g.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && g.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	if opts.HasReport != nil && reportPresent(g.Report) != *opts.HasReport {
		return false
	}
	if opts.Query != "" && !matchesQuery(g, opts.Query) {
		return false
	}
	return true
}

func matchesQuery(g *Goal, query string) bool {
	query = strings.ToLower(query)
	fields := []string{g.ID, g.Description, g.Source, g.AgentType, g.LastError, g.ErrorCode}
	fields = append(fields, g.Tags...)
	if g.Report != nil {
		fields = append(fields, g.Report.Summary)
	}
	for _, field := range fields {
		if field == "" {
			continue
		}
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)

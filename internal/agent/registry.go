package agent

import (
	"sync"

	xerrors "AgentMesh/internal/errors"
)

// Registry 维护进程内已创建的智能体，按类型索引。
// 目标处理器通过它把目标路由到对应类型的智能体。
type Registry struct {
	mu     sync.RWMutex
	byType map[string]*Core
}

// NewRegistry 创建空的智能体注册表。
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]*Core)}
}

// Add 登记一个智能体。同类型重复登记返回冲突错误。
func (r *Registry) Add(core *Core) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agentType := core.Handler().Type()
	if _, ok := r.byType[agentType]; ok {
		return xerrors.New(xerrors.CodeConflict, "智能体类型已登记: "+agentType)
	}
	r.byType[agentType] = core
	return nil
}

// Get 按类型查找智能体。
func (r *Registry) Get(agentType string) (*Core, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	core, ok := r.byType[agentType]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "未找到智能体类型: "+agentType)
	}
	return core, nil
}

// Types 返回已登记的智能体类型。
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	return types
}

// Snapshots 返回所有智能体的状态快照。
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(r.byType))
	for _, core := range r.byType {
		snaps = append(snaps, core.Status())
	}
	return snaps
}

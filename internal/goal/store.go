package goal

import (
	"context"

	xerrors "AgentMesh/internal/errors"
)

// Store 抽象了目标状态的持久化接口。
type Store interface {
	Create(ctx context.Context, goal *Goal) error
	Get(ctx context.Context, id string) (*Goal, error)
	Claim(ctx context.Context, id string) (*Goal, error)
	MarkSucceeded(ctx context.Context, id string, report RunReport) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Goal, error)
	Stats(ctx context.Context, opts ListOptions) (GoalStats, error)
	Close() error
}

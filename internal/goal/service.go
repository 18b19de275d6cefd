package goal

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "AgentMesh/internal/errors"
	"AgentMesh/pkg/logger"
)

// DefaultPriority 是未指定时的目标优先级。
const DefaultPriority = 5

// SubmitRequest 描述提交目标时的输入。
type SubmitRequest struct {
	ID          string         `json:"id,omitempty"`
	Description string         `json:"description"`
	Source      string         `json:"source,omitempty"`
	AgentType   string         `json:"agent_type,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Service 负责目标的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造目标服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个新的目标并推送到队列。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Goal, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, xerrors.New(CodeGoalValidation, "目标描述不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "目标服务未初始化")
	}

	goalID := strings.TrimSpace(req.ID)
	if goalID != "" {
		existing, err := s.store.Get(ctx, goalID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrGoalNotFound) {
			return nil, err
		}
	} else {
		goalID = uuid.NewString()
	}

	priority := req.Priority
	if priority <= 0 {
		priority = DefaultPriority
	}

	g := &Goal{
		ID:          goalID,
		Description: req.Description,
		Source:      req.Source,
		AgentType:   req.AgentType,
		Priority:    priority,
		Tags:        cloneTags(req.Tags),
		Metadata:    cloneMetadata(req.Metadata),
		Status:      StatusPending,
		Attempts:    0,
		MaxRetries:  s.maxRetries,
	}
	if err := s.store.Create(ctx, g); err != nil {
		if stdErrors.Is(err, ErrGoalConflict) {
			existing, getErr := s.store.Get(ctx, goalID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrGoalNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, goalID); err != nil {
		logger.L().Error("目标入队失败", slog.Any("error", err), slog.String("goal_id", goalID))
		wrapped := xerrors.Wrap(CodeGoalPublish, err, "发布目标到队列失败")
		_ = s.store.MarkFailed(ctx, goalID, CodeGoalPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("目标入队成功",
		slog.String("goal_id", goalID),
		slog.String("description", g.Description),
		slog.String("agent_type", g.AgentType),
		slog.Int("max_retries", g.MaxRetries),
	)
	return g, nil
}

// Get 返回指定目标的状态。
func (s *Service) Get(ctx context.Context, id string) (*Goal, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "目标存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的目标列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Goal, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "目标存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的目标统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (GoalStats, error) {
	if s.store == nil {
		return GoalStats{}, xerrors.New(xerrors.CodeInitializationFailure, "目标存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询目标状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Goal, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		g, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if g.Status == StatusSucceeded || g.Status == StatusFailed {
			return g, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

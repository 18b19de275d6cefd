package goal

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "AgentMesh/internal/errors"
	"AgentMesh/internal/observability/alerting"
	"AgentMesh/internal/observability/metrics"
	"AgentMesh/pkg/logger"
)

// Executor 定义了处理器所需的执行能力。
type Executor interface {
	ExecuteGoal(ctx context.Context, g *Goal) (*RunReport, error)
}

// Processor 负责从队列消费目标并交给智能体执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动目标处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置目标消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, goalID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	g, err := p.store.Claim(ctx, goalID)
	if err != nil {
		if stdErrors.Is(err, ErrGoalNotFound) || stdErrors.Is(err, ErrGoalCompleted) || stdErrors.Is(err, ErrGoalExhausted) {
			p.logDebug("跳过目标", slog.String("goal_id", goalID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取目标失败", slog.Any("error", err), slog.String("goal_id", goalID))
		p.emitAlert(ctx, &Goal{ID: goalID}, CodeGoalProcessing, err, "claim")
		return err
	}

	started := time.Now()
	report, execErr := p.executor.ExecuteGoal(ctx, g)
	elapsed := time.Since(started)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, g, execErr, elapsed)
	}
	metrics.ObserveGoalProcessed(g.AgentType, "succeeded", elapsed)

	var record RunReport
	if report != nil {
		record = *report
	}
	if err := p.store.MarkSucceeded(ctx, g.ID, record); err != nil {
		logger.L().Error("标记目标成功状态失败", slog.Any("error", err), slog.String("goal_id", g.ID))
		if storeErr := p.store.MarkFailed(ctx, g.ID, CodeGoalProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("goal_id", g.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, g.ID); pubErr != nil {
			return xerrors.Wrap(CodeGoalPublish, pubErr, fmt.Sprintf("目标 %s 在标记成功失败后重投失败", g.ID))
		}
		logger.Audit().Warn("目标标记成功失败后重试",
			slog.String("goal_id", g.ID),
			slog.String("description", g.Description),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Audit().Info("目标执行成功",
		slog.String("goal_id", g.ID),
		slog.String("description", g.Description),
		slog.Int("steps_completed", record.StepsCompleted),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, g *Goal, execErr error, elapsed time.Duration) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeGoalProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := g.Attempts >= g.MaxRetries || !retryable

	outcome := "retried"
	if terminal {
		outcome = "failed"
	}
	metrics.ObserveGoalProcessed(g.AgentType, outcome, elapsed)

	if !retryable && p.recovery != nil {
		if fallback, recErr := p.recovery.Recover(ctx, g, execErr); recErr != nil {
			wrapped := xerrors.Wrap(CodeGoalCompensate, recErr, "目标补偿失败")
			logger.L().Error("执行补偿逻辑失败",
				slog.Any("error", wrapped),
				slog.String("goal_id", g.ID))
			p.emitAlert(ctx, g, CodeGoalCompensate, wrapped, "compensate")
		} else if fallback != nil {
			if fallback.Summary == "" {
				fallback.Summary = fmt.Sprintf("降级处理: %v", execErr)
			}
			if err := p.store.MarkSucceeded(ctx, g.ID, *fallback); err != nil {
				logger.L().Error("记录降级结果失败", slog.Any("error", err), slog.String("goal_id", g.ID))
				if storeErr := p.store.MarkFailed(ctx, g.ID, code, err.Error(), false); storeErr != nil {
					logger.L().Error("降级失败后的回写失败状态出错", slog.Any("error", storeErr), slog.String("goal_id", g.ID))
					return storeErr
				}
				if pubErr := p.producer.Publish(ctx, g.ID); pubErr != nil {
					return xerrors.Wrap(CodeGoalPublish, pubErr, fmt.Sprintf("目标 %s 在降级失败后重投失败", g.ID))
				}
				return nil
			}
			logger.Audit().Warn("目标降级完成",
				slog.String("goal_id", g.ID),
				slog.String("description", g.Description),
				slog.String("summary", fallback.Summary),
			)
			p.emitAlert(ctx, g, code, execErr, "degraded")
			return nil
		}
	}

	if storeErr := p.store.MarkFailed(ctx, g.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记目标失败状态出错", slog.Any("error", storeErr), slog.String("goal_id", g.ID))
		return storeErr
	}
	logger.Audit().Warn("目标执行失败",
		slog.String("goal_id", g.ID),
		slog.String("description", g.Description),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", g.Attempts),
		slog.Int("max_retries", g.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, g, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, g.ID); pubErr != nil {
			return xerrors.Wrap(CodeGoalPublish, pubErr, fmt.Sprintf("目标 %s 重投失败", g.ID))
		}
		p.logDebug("目标已重新排队", slog.String("goal_id", g.ID), slog.Int("attempts", g.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, g *Goal, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || g == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		GoalID:     g.ID,
		AgentType:  g.AgentType,
		Attempts:   g.Attempts,
		MaxRetries: g.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("goal_id", g.ID),
			slog.String("stage", stage),
		)
	}
}

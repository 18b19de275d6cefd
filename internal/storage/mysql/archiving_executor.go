package mysql

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"AgentMesh/internal/goal"
	"AgentMesh/pkg/logger"
)

// ArchivingExecutor 在目标执行成功后将汇总写入归档仓库。
// 归档失败只记录日志，不影响目标本身的状态流转。
type ArchivingExecutor struct {
	next    goal.Executor
	archive ReportArchive
}

// NewArchivingExecutor 包装一个执行器并附加归档能力。
func NewArchivingExecutor(next goal.Executor, archive ReportArchive) *ArchivingExecutor {
	return &ArchivingExecutor{next: next, archive: archive}
}

// ExecuteGoal 实现 goal.Executor 接口。
func (e *ArchivingExecutor) ExecuteGoal(ctx context.Context, g *goal.Goal) (*goal.RunReport, error) {
	report, err := e.next.ExecuteGoal(ctx, g)
	if err != nil || report == nil || e.archive == nil {
		return report, err
	}
	record := ReportRecord{
		GoalID:         g.ID,
		AgentType:      g.AgentType,
		Description:    g.Description,
		Success:        report.Success,
		StepsTotal:     report.StepsTotal,
		StepsCompleted: report.StepsCompleted,
		StepsFailed:    report.StepsFailed,
		ExecutionOrder: strings.Join(report.ExecutionOrder, ","),
		Summary:        report.Summary,
		CreatedAt:      time.Now().Unix(),
	}
	if saveErr := e.archive.Save(ctx, record); saveErr != nil {
		logger.L().Warn("归档执行汇总失败",
			slog.Any("error", saveErr),
			slog.String("goal_id", g.ID),
		)
	}
	return report, nil
}

var _ goal.Executor = (*ArchivingExecutor)(nil)

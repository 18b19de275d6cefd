package goal

import (
	stdErrors "errors"

	xerrors "AgentMesh/internal/errors"
)

// Status 表示目标在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// RunReport 保存一次目标执行的汇总结果。
type RunReport struct {
	Success        bool     `json:"success"`
	StepsTotal     int      `json:"steps_total"`
	StepsCompleted int      `json:"steps_completed"`
	StepsFailed    int      `json:"steps_failed"`
	ExecutionOrder []string `json:"execution_order,omitempty"`
	Summary        string   `json:"summary,omitempty"`
}

// Goal 描述了排队等待智能体执行的目标。
type Goal struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Source      string         `json:"source,omitempty"`
	AgentType   string         `json:"agent_type,omitempty"`
	Priority    int            `json:"priority"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Status      Status         `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxRetries  int            `json:"max_retries"`
	LastError   string         `json:"last_error,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	Report      *RunReport     `json:"report,omitempty"`
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
}

var (
	// ErrGoalNotFound 表示指定的目标不存在。
	ErrGoalNotFound = xerrors.New(CodeGoalNotFound, "goal not found")
	// ErrGoalConflict 表示目标在当前状态下无法进行所请求的操作。
	ErrGoalConflict = xerrors.New(CodeGoalConflict, "goal conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrGoalCompleted 表示目标已经成功完成。
	ErrGoalCompleted = xerrors.New(CodeGoalCompleted, "goal already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrGoalExhausted 表示目标的重试次数已经耗尽。
	ErrGoalExhausted = xerrors.New(CodeGoalExhausted, "goal retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeGoalNotFound   xerrors.Code = "GOAL_NOT_FOUND"
	CodeGoalConflict   xerrors.Code = "GOAL_CONFLICT"
	CodeGoalCompleted  xerrors.Code = "GOAL_COMPLETED"
	CodeGoalExhausted  xerrors.Code = "GOAL_RETRIES_EXHAUSTED"
	CodeGoalValidation xerrors.Code = "GOAL_VALIDATION_FAILED"
	CodeGoalPublish    xerrors.Code = "GOAL_PUBLISH_FAILED"
	CodeGoalProcessing xerrors.Code = "GOAL_PROCESSING_FAILED"
	CodeGoalCompensate xerrors.Code = "GOAL_COMPENSATION_FAILED"
)

func init() {
	xerrors.Register(CodeGoalNotFound, xerrors.Attributes{
		Message:   "goal not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeGoalConflict, xerrors.Attributes{
		Message:   "goal conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeGoalCompleted, xerrors.Attributes{
		Message:   "goal already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeGoalExhausted, xerrors.Attributes{
		Message:   "goal retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeGoalValidation, xerrors.Attributes{
		Message:   "goal validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeGoalPublish, xerrors.Attributes{
		Message:   "failed to publish goal",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeGoalProcessing, xerrors.Attributes{
		Message:   "goal execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeGoalCompensate, xerrors.Attributes{
		Message:   "goal compensation failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// IsGoalError 判断错误是否为统一目标错误。
func IsGoalError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrGoalNotFound) {
		return target == CodeGoalNotFound
	}
	if stdErrors.Is(err, ErrGoalConflict) {
		return target == CodeGoalConflict
	}
	if stdErrors.Is(err, ErrGoalCompleted) {
		return target == CodeGoalCompleted
	}
	if stdErrors.Is(err, ErrGoalExhausted) {
		return target == CodeGoalExhausted
	}
	return false
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	cloned := make([]string, len(tags))
	copy(cloned, tags)
	return cloned
}

// IsValidStatus 检查给定的目标状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func reportPresent(report *RunReport) bool {
	if report == nil {
		return false
	}
	return report.Success || report.StepsTotal > 0 || report.Summary != "" || len(report.ExecutionOrder) > 0
}

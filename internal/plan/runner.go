package plan

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"AgentMesh/pkg/logger"
)

// DefaultStepTimeout 是单个步骤允许的最长执行时间。
const DefaultStepTimeout = 120 * time.Second

// 与执行报告约定一致的失败原因文案。
const (
	reasonDependencyFailed = "Dependency failed"
	reasonDeadlocked       = "Deadlocked dependency"
)

// Runner 按依赖波次（wavefront）执行 Plan：每一轮找出依赖已全部解决的
// 步骤并并发执行，全部到达终态后再进入下一轮。Runner 在正常执行路径上
// 从不返回错误，所有失败形态都收敛到 Report 中。
type Runner struct {
	executor    StepExecutor
	sink        EventSink
	stepTimeout time.Duration
	logger      *slog.Logger
}

// RunnerOption 定义 Runner 的可选配置。
type RunnerOption func(*Runner)

// WithEventSink 配置执行结束后的事件接收端。
func WithEventSink(sink EventSink) RunnerOption {
	return func(r *Runner) { r.sink = sink }
}

// WithStepTimeout 覆盖单步执行超时。
func WithStepTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		if timeout > 0 {
			r.stepTimeout = timeout
		}
	}
}

// WithRunnerLogger 指定日志输出。
func WithRunnerLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = log }
}

// NewRunner 构造 Runner。
func NewRunner(executor StepExecutor, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor:    executor,
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("plan.runner")
	}
	return r
}

// Run 执行计划直到所有步骤到达终态，返回完整的执行报告。
//
// 每一轮的就绪判定：步骤的所有依赖要么已完成（含被容忍的失败），要么
// 已经以其它方式离开 remaining 集合。依赖硬失败且自身不容忍失败的步骤
// 直接被记为级联跳过，不会进入执行。一轮中没有任何就绪步骤而 remaining
// 非空时，剩余步骤全部按死锁失败处理。
func (r *Runner) Run(ctx context.Context, p *Plan) *Report {
	completed := make(map[string]*Result)
	var failures []Failure
	hardFailed := make(map[string]struct{})
	var executionOrder []string

	remaining := make(map[string]struct{}, p.Len())
	if p != nil {
		for _, step := range p.Steps {
			remaining[step.ID] = struct{}{}
		}
	}

	for len(remaining) > 0 {
		var ready []*Step
		// 按计划内的原始顺序遍历，保证波次划分可复现。
		for _, step := range p.Steps {
			if _, pending := remaining[step.ID]; !pending {
				continue
			}
			if !depsResolved(step, completed, remaining) {
				continue
			}
			if depHardFailed(step, hardFailed) && !step.CanFail {
				// 级联跳过：不执行，直接记失败。
				failures = append(failures, Failure{ID: step.ID, Error: reasonDependencyFailed, Skipped: true})
				hardFailed[step.ID] = struct{}{}
				step.Status = StatusFailed
				step.Result = &Result{Success: false, Error: reasonDependencyFailed}
				delete(remaining, step.ID)
				continue
			}
			ready = append(ready, step)
		}

		if len(ready) == 0 {
			if len(remaining) == 0 {
				break
			}
			// 剩余步骤的依赖永远无法满足（环或不可达），全部按死锁处理。
			for _, step := range p.Steps {
				if _, pending := remaining[step.ID]; !pending {
					continue
				}
				failures = append(failures, Failure{ID: step.ID, Error: reasonDeadlocked, Skipped: true})
				step.Status = StatusFailed
				step.Result = &Result{Success: false, Error: reasonDeadlocked}
			}
			r.logger.Warn("计划出现死锁依赖",
				slog.String("plan_id", planIdentifier(p)),
				slog.Int("deadlocked", len(remaining)),
			)
			break
		}

		results := r.runWave(ctx, ready, completed)

		for i, step := range ready {
			result := results[i]
			delete(remaining, step.ID)
			executionOrder = append(executionOrder, step.ID)
			step.Result = result
			if result.Success {
				step.Status = StatusCompleted
				completed[step.ID] = result
				continue
			}
			step.Status = StatusFailed
			if step.CanFail {
				// 被容忍的失败：结果照常可见，下游继续执行。
				completed[step.ID] = result
				continue
			}
			failures = append(failures, Failure{ID: step.ID, Error: result.Error})
			hardFailed[step.ID] = struct{}{}
		}
	}

	report := &Report{
		Success:        len(failures) == 0,
		StepsTotal:     p.Len(),
		StepsCompleted: len(completed),
		StepsFailed:    len(failures),
		ExecutionOrder: executionOrder,
		Results:        completed,
		Failures:       failures,
	}

	r.notify(ctx, p, report)
	return report
}

// runWave 并发执行一轮就绪步骤，返回与 ready 顺序对应的结果。
// 波宽由就绪步骤数决定，计划规模受 DefaultMaxSteps 约束，无需额外的协程池。
func (r *Runner) runWave(ctx context.Context, ready []*Step, completed map[string]*Result) []*Result {
	snapshot := make(map[string]*Result, len(completed))
	for id, result := range completed {
		snapshot[id] = result
	}

	results := make([]*Result, len(ready))
	var wg sync.WaitGroup
	for i, step := range ready {
		wg.Add(1)
		go func(i int, step *Step) {
			defer wg.Done()
			results[i] = r.runStep(ctx, step, snapshot)
		}(i, step)
	}
	wg.Wait()
	return results
}

// runStep 执行单个步骤并施加超时。超时等价于一次执行失败，不影响同轮
// 的其它步骤。
func (r *Runner) runStep(ctx context.Context, step *Step, completed map[string]*Result) *Result {
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	r.logger.Info("执行步骤",
		slog.String("step_id", step.ID),
		slog.String("tool", step.Tool),
		slog.String("agent_type", step.AgentType),
	)

	done := make(chan *Result, 1)
	go func() {
		result, err := r.executor.Execute(stepCtx, step, completed)
		switch {
		case err != nil:
			done <- &Result{Success: false, Error: err.Error()}
		case result == nil:
			done <- &Result{Success: false, Error: "executor returned no result"}
		default:
			done <- result
		}
	}()

	select {
	case result := <-done:
		return result
	case <-stepCtx.Done():
		if stdErrors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return &Result{Success: false, Error: fmt.Sprintf("Step %s timed out", step.ID)}
		}
		return &Result{Success: false, Error: stepCtx.Err().Error()}
	}
}

// notify 发送执行结束事件。事件投递失败只记日志，不影响返回的报告。
func (r *Runner) notify(ctx context.Context, p *Plan, report *Report) {
	if r.sink == nil {
		return
	}
	event := Event{
		StepsTotal:     report.StepsTotal,
		StepsCompleted: report.StepsCompleted,
		StepsFailed:    report.StepsFailed,
		Success:        report.Success,
	}
	if p != nil {
		event.Goal = p.Goal
	}
	if err := r.sink.PlanExecuted(ctx, event); err != nil {
		r.logger.Warn("计划执行事件投递失败", slog.Any("error", err))
	}
}

func depsResolved(step *Step, completed map[string]*Result, remaining map[string]struct{}) bool {
	for _, dep := range step.DependsOn {
		if _, ok := completed[dep]; ok {
			continue
		}
		if _, pending := remaining[dep]; pending {
			return false
		}
	}
	return true
}

func depHardFailed(step *Step, hardFailed map[string]struct{}) bool {
	for _, dep := range step.DependsOn {
		if _, ok := hardFailed[dep]; ok {
			return true
		}
	}
	return false
}

func planIdentifier(p *Plan) string {
	if p == nil {
		return ""
	}
	return p.ID
}

package remediation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftguard/driftguard/internal/audit"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/logger"
	"github.com/driftguard/driftguard/internal/metrics"
	"github.com/driftguard/driftguard/internal/telemetry"
	"github.com/driftguard/driftguard/internal/terraform"
)

// Runner is the subset of infrastructure tool operations the executor
// invokes. *terraform.CLIRunner satisfies it.
type Runner interface {
	Plan(ctx context.Context, target string) (string, error)
	Apply(ctx context.Context, target string) (*terraform.ApplyResult, error)
	Rollback(ctx context.Context, backupPath string) error
}

// Rewriter updates declarative source to match observed state.
// *terraform.FileRewriter satisfies it.
type Rewriter interface {
	Rewrite(ctx context.Context, req terraform.RewriteRequest) (*terraform.RewriteResult, error)
}

// ExecutorOptions wires an Executor. Runner and Config are required;
// everything else is optional. When Gate is nil a gate is built from
// the policy, which denies by default. OnProgress is invoked once per
// action that reaches a terminal status, possibly from multiple
// goroutines.
type ExecutorOptions struct {
	Runner     Runner
	Rewriter   Rewriter
	Gate       *ApprovalGate
	Audit      *audit.Log
	Metrics    *metrics.Recorder
	Tracer     trace.Tracer
	Config     *config.RemediationConfig
	OnProgress func(action *RemediationAction, result *RemediationResult)
}

// Executor walks a plan's actions in execution order, gates them
// through approval, runs the corrective operation, and maintains the
// plan and action state machines. One Executor handles one working
// directory; concurrent plans against the same directory are the
// caller's problem.
type Executor struct {
	runner     Runner
	rewriter   Rewriter
	gate       *ApprovalGate
	audit      *audit.Log
	metrics    *metrics.Recorder
	tracer     trace.Tracer
	cfg        *config.RemediationConfig
	onProgress func(*RemediationAction, *RemediationResult)
	log        logger.Logger
}

// NewExecutor validates the options and builds an Executor.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("remediation config is required")
	}

	gate := opts.Gate
	if gate == nil {
		var err error
		gate, err = NewApprovalGate(opts.Config)
		if err != nil {
			return nil, err
		}
	}

	return &Executor{
		runner:     opts.Runner,
		rewriter:   opts.Rewriter,
		gate:       gate,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		cfg:        opts.Config,
		onProgress: opts.OnProgress,
		log:        logger.New("executor"),
	}, nil
}

// Gate returns the executor's approval gate, for recording out-of-band
// decisions before execution.
func (e *Executor) Gate() *ApprovalGate {
	return e.gate
}

// ExecutePlan runs every action of a pending plan in execution order
// and finalizes the plan status and counters. Only attempted actions
// produce results; cancelled and skipped actions are counted on the
// plan instead. The returned error covers preconditions only: action
// failures surface through the plan status and per-result errors.
func (e *Executor) ExecutePlan(ctx context.Context, plan *RemediationPlan) ([]RemediationResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if plan.Status != PlanStatusPending {
		return nil, fmt.Errorf("plan %s is %s, only pending plans can be executed", plan.ID, plan.Status)
	}

	ctx, span := e.startSpan(ctx, "remediation.execute_plan",
		attribute.String("plan.id", plan.ID),
		attribute.Int("plan.total_actions", plan.TotalActions),
		attribute.Bool("plan.dry_run", plan.DryRun))
	defer span.End()

	started := time.Now().UTC()
	plan.StartedAt = &started
	plan.Status = PlanStatusInProgress

	e.log.Info("executing remediation plan",
		logger.String("plan_id", plan.ID),
		logger.Int("actions", len(plan.Actions)),
		logger.Bool("dry_run", plan.DryRun),
		logger.Int("max_concurrent", e.maxConcurrent()))
	e.audit.Info(plan.ID, "", "remediation plan started", map[string]interface{}{
		"actions":     len(plan.Actions),
		"dry_run":     plan.DryRun,
		"concurrency": e.maxConcurrent(),
	})

	tally := newExecutionTally()
	ordered := e.orderedActions(plan)

	if e.maxConcurrent() > 1 {
		e.runConcurrent(ctx, plan, ordered, tally)
	} else {
		e.runSequential(ctx, plan, ordered, tally)
	}

	return e.finalize(plan, ordered, tally), nil
}

// maxConcurrent clamps the configured worker count to at least one.
func (e *Executor) maxConcurrent() int {
	if e.cfg.MaxConcurrent > 1 {
		return e.cfg.MaxConcurrent
	}
	return 1
}

// orderedActions resolves the plan's execution order to actions. Plans
// built outside the planner may lack a usable order; they fall back to
// a fresh severity-ascending sort.
func (e *Executor) orderedActions(plan *RemediationPlan) []*RemediationAction {
	ordered := make([]*RemediationAction, 0, len(plan.Actions))
	for _, id := range plan.ExecutionOrder {
		if action := plan.ActionByID(id); action != nil {
			ordered = append(ordered, action)
		}
	}
	if len(ordered) != len(plan.Actions) {
		ordered = ordered[:0]
		for _, id := range executionOrder(plan.Actions) {
			ordered = append(ordered, plan.ActionByID(id))
		}
	}
	return ordered
}

func (e *Executor) runSequential(ctx context.Context, plan *RemediationPlan, ordered []*RemediationAction, tally *executionTally) {
	for _, action := range ordered {
		if ctx.Err() != nil {
			e.log.Warn("execution interrupted, remaining actions left pending",
				logger.String("plan_id", plan.ID))
			return
		}
		result := e.executeAction(ctx, plan, action)
		tally.record(action, result)
		e.progress(action, result)
		if result != nil && !result.Success && !e.cfg.ContinueOnError {
			e.log.Warn("halting after failed action",
				logger.String("plan_id", plan.ID),
				logger.String("action_id", action.ID))
			return
		}
	}
}

// runConcurrent drives a bounded worker pool. The semaphore is
// acquired before each launch so actions still start in execution
// order. After a failure with ContinueOnError off, no further actions
// launch; in-flight ones finish.
func (e *Executor) runConcurrent(ctx context.Context, plan *RemediationPlan, ordered []*RemediationAction, tally *executionTally) {
	sem := make(chan struct{}, e.maxConcurrent())
	var wg sync.WaitGroup
	var stop atomic.Bool

	for _, action := range ordered {
		if ctx.Err() != nil || stop.Load() {
			break
		}
		sem <- struct{}{}
		if stop.Load() {
			<-sem
			break
		}
		wg.Add(1)
		go func(a *RemediationAction) {
			defer wg.Done()
			defer func() { <-sem }()
			result := e.executeAction(ctx, plan, a)
			tally.record(a, result)
			e.progress(a, result)
			if result != nil && !result.Success && !e.cfg.ContinueOnError {
				stop.Store(true)
			}
		}(action)
	}
	wg.Wait()

	if stop.Load() {
		e.log.Warn("halted after failed action, remaining actions left pending",
			logger.String("plan_id", plan.ID))
	}
}

// executeAction runs one action to a terminal status. It returns nil
// when the action was not attempted (skipped, cancelled, or in an
// unexpected state); the caller tallies counters either way.
func (e *Executor) executeAction(ctx context.Context, plan *RemediationPlan, action *RemediationAction) *RemediationResult {
	ctx, span := e.startSpan(ctx, "remediation.execute_action",
		attribute.String("action.id", action.ID),
		attribute.String("action.resource", action.ResourceName),
		attribute.String("action.strategy", string(action.Strategy)),
		attribute.String("action.severity", action.Severity.String()))
	defer span.End()
	defer func() {
		span.SetAttributes(attribute.String("action.status", string(action.Status)))
	}()

	if action.Status != StatusPending && action.Status != StatusApproved {
		e.log.Warn("action not in a runnable state",
			logger.String("action_id", action.ID),
			logger.String("status", string(action.Status)))
		return nil
	}

	switch action.Strategy {
	case StrategyIgnore:
		_ = action.SetStatus(StatusSkipped)
		e.log.Debug("skipping ignored action", logger.String("action_id", action.ID))
		e.metrics.ActionExecuted(string(StatusSkipped), 0)
		return nil
	case StrategyManual:
		_ = action.SetStatus(StatusSkipped)
		e.log.Warn("manual remediation required",
			logger.String("resource", action.ResourceName),
			logger.String("property", action.PropertyPath),
			logger.String("description", action.Description))
		e.audit.Warn(plan.ID, action.ID, "manual remediation required", map[string]interface{}{
			"resource": action.ResourceName,
			"property": action.PropertyPath,
			"severity": action.Severity.String(),
		})
		e.metrics.ActionExecuted(string(StatusSkipped), 0)
		return nil
	}

	if action.Status == StatusPending && action.RequiresApproval && !plan.AutoApprove {
		if !e.approve(ctx, plan, action) {
			return nil
		}
	}

	if err := action.SetStatus(StatusInProgress); err != nil {
		e.log.Error("cannot start action", logger.Error(err))
		return nil
	}
	executedAt := time.Now().UTC()
	action.ExecutedAt = &executedAt

	start := time.Now()
	output, execErr := e.perform(ctx, plan, action)
	duration := time.Since(start)
	completedAt := time.Now().UTC()
	action.CompletedAt = &completedAt

	result := &RemediationResult{
		PlanID:   plan.ID,
		Action:   action,
		Success:  execErr == nil,
		Duration: duration,
		Output:   output,
	}

	if execErr != nil {
		action.Error = execErr.Error()
		result.Error = execErr.Error()
		_ = action.SetStatus(StatusFailed)
		telemetry.RecordError(ctx, execErr, "action failed")
		e.log.Error("remediation action failed",
			logger.String("action_id", action.ID),
			logger.String("resource", action.ResourceName),
			logger.Error(execErr))
		e.audit.Error(plan.ID, action.ID, "remediation action failed", map[string]interface{}{
			"resource":    action.ResourceName,
			"property":    action.PropertyPath,
			"error":       execErr.Error(),
			"duration_ms": float64(duration.Milliseconds()),
		})
		e.metrics.ActionExecuted(string(StatusFailed), duration)
		e.maybeRollback(ctx, plan, action, result)
		return result
	}

	_ = action.SetStatus(StatusCompleted)
	e.log.Info("remediation action completed",
		logger.String("action_id", action.ID),
		logger.String("resource", action.ResourceName),
		logger.Duration("duration", duration))
	e.audit.Success(plan.ID, action.ID, "remediation action completed", map[string]interface{}{
		"resource":    action.ResourceName,
		"property":    action.PropertyPath,
		"strategy":    string(action.Strategy),
		"dry_run":     plan.DryRun,
		"duration_ms": float64(duration.Milliseconds()),
	})
	e.metrics.ActionExecuted(string(StatusCompleted), duration)
	return result
}

// approve runs the gate for one pending action. A denial or decider
// failure cancels the action.
func (e *Executor) approve(ctx context.Context, plan *RemediationPlan, action *RemediationAction) bool {
	approved, err := e.gate.RequestApproval(ctx, action)
	if err != nil {
		e.log.Error("approval failed, cancelling action",
			logger.String("action_id", action.ID),
			logger.Error(err))
		approved = false
	}
	e.metrics.ApprovalDecided(approved)

	if !approved {
		_ = action.SetStatus(StatusCancelled)
		e.audit.Warn(plan.ID, action.ID, "remediation action cancelled: approval denied", map[string]interface{}{
			"resource": action.ResourceName,
			"property": action.PropertyPath,
			"severity": action.Severity.String(),
		})
		e.metrics.ActionExecuted(string(StatusCancelled), 0)
		return false
	}

	_ = action.SetStatus(StatusApproved)
	e.audit.Info(plan.ID, action.ID, "remediation action approved", map[string]interface{}{
		"resource": action.ResourceName,
		"severity": action.Severity.String(),
	})
	return true
}

// perform runs the corrective operation for one in-progress action. In
// dry-run mode every strategy degrades to a read-only preview.
func (e *Executor) perform(ctx context.Context, plan *RemediationPlan, action *RemediationAction) (string, error) {
	target := terraform.TargetAddress(action.ResourceName)

	if plan.DryRun {
		return e.runner.Plan(ctx, target)
	}

	switch action.Strategy {
	case StrategyTerraformApply:
		applied, err := e.runner.Apply(ctx, target)
		var output string
		if applied != nil {
			output = applied.Output
			if applied.Backup != nil {
				action.RollbackData = &RollbackData{
					BackupID:    applied.Backup.ID,
					StateBackup: applied.Backup.Path,
					CreatedAt:   applied.Backup.CreatedAt,
				}
			}
		}
		return output, err
	case StrategyTerraformUpdate:
		if e.rewriter == nil {
			return "", fmt.Errorf("no configuration rewriter available")
		}
		rewritten, err := e.rewriter.Rewrite(ctx, terraform.RewriteRequest{
			ResourceName: action.ResourceName,
			PropertyPath: action.PropertyPath,
			OldValue:     action.DesiredValue,
			NewValue:     action.CurrentValue,
		})
		if err != nil {
			return "", err
		}
		return rewritten.Summary, nil
	default:
		return "", fmt.Errorf("unsupported remediation strategy %q", action.Strategy)
	}
}

// maybeRollback restores the pre-change state backup after a failure.
// Rollback failure is logged and audited but never escalates: the
// action stays failed either way.
func (e *Executor) maybeRollback(ctx context.Context, plan *RemediationPlan, action *RemediationAction, result *RemediationResult) {
	if plan.DryRun || !e.cfg.RollbackOnError {
		return
	}
	if action.RollbackData == nil || action.RollbackData.StateBackup == "" {
		return
	}

	err := e.runner.Rollback(ctx, action.RollbackData.StateBackup)
	if err != nil {
		e.log.Error("rollback failed",
			logger.String("action_id", action.ID),
			logger.String("backup", action.RollbackData.StateBackup),
			logger.Error(err))
		e.audit.Error(plan.ID, action.ID, "rollback failed", map[string]interface{}{
			"backup_id": action.RollbackData.BackupID,
			"error":     err.Error(),
		})
		e.metrics.RollbackPerformed(false)
		return
	}

	result.RollbackPerformed = true
	_ = action.SetStatus(StatusRolledBack)
	e.log.Warn("state rolled back after failed action",
		logger.String("action_id", action.ID),
		logger.String("backup_id", action.RollbackData.BackupID))
	e.audit.Warn(plan.ID, action.ID, "state rolled back after failed action", map[string]interface{}{
		"backup_id": action.RollbackData.BackupID,
	})
	e.metrics.RollbackPerformed(true)
}

// finalize writes the counters and terminal status onto the plan and
// assembles the attempted results in execution order.
func (e *Executor) finalize(plan *RemediationPlan, ordered []*RemediationAction, tally *executionTally) []RemediationResult {
	plan.SuccessCount = tally.success
	plan.FailureCount = tally.failure
	plan.CancelledCount = tally.cancelled
	plan.SkippedCount = tally.skipped

	completed := time.Now().UTC()
	plan.CompletedAt = &completed
	if tally.failure == 0 {
		plan.Status = PlanStatusCompleted
	} else {
		plan.Status = PlanStatusFailed
	}

	results := make([]RemediationResult, 0, len(tally.results))
	for _, action := range ordered {
		if result, ok := tally.results[action.ID]; ok {
			results = append(results, *result)
		}
	}

	counts := map[string]interface{}{
		"succeeded": tally.success,
		"failed":    tally.failure,
		"cancelled": tally.cancelled,
		"skipped":   tally.skipped,
	}
	e.log.Info("remediation plan finished",
		logger.String("plan_id", plan.ID),
		logger.String("status", string(plan.Status)),
		logger.Int("succeeded", tally.success),
		logger.Int("failed", tally.failure),
		logger.Int("cancelled", tally.cancelled),
		logger.Int("skipped", tally.skipped))
	if plan.Status == PlanStatusCompleted {
		e.audit.Success(plan.ID, "", "remediation plan completed", counts)
	} else {
		e.audit.Error(plan.ID, "", "remediation plan failed", counts)
	}

	return results
}

func (e *Executor) progress(action *RemediationAction, result *RemediationResult) {
	if e.onProgress != nil {
		e.onProgress(action, result)
	}
}

func (e *Executor) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// executionTally accumulates outcomes under one mutex shared by the
// sequential and concurrent paths.
type executionTally struct {
	mu        sync.Mutex
	success   int
	failure   int
	cancelled int
	skipped   int
	results   map[string]*RemediationResult
}

func newExecutionTally() *executionTally {
	return &executionTally{results: make(map[string]*RemediationResult)}
}

// record classifies the action's terminal status. Actions that never
// reached a terminal status (left pending by a halt) count nowhere.
func (t *executionTally) record(action *RemediationAction, result *RemediationResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch action.Status {
	case StatusCompleted:
		t.success++
	case StatusFailed, StatusRolledBack:
		t.failure++
	case StatusCancelled:
		t.cancelled++
	case StatusSkipped:
		t.skipped++
	}
	if result != nil {
		t.results[action.ID] = result
	}
}

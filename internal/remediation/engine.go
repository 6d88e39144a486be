package remediation

import (
	"context"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftguard/driftguard/internal/audit"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/logger"
	"github.com/driftguard/driftguard/internal/metrics"
	"github.com/driftguard/driftguard/internal/terraform"
)

// Engine ties the planner, approval gate, executor, audit trail, and
// plan store together behind one entry point. It is the only type the
// command layer talks to.
type Engine struct {
	cfg      *config.Config
	planner  *PlanBuilder
	executor *Executor
	gate     *ApprovalGate
	auditLog *audit.Log
	store    *PlanStore
	metrics  *metrics.Recorder
	tracer   trace.Tracer
	log      logger.Logger
}

type engineOptions struct {
	runner   Runner
	rewriter Rewriter
	decider  DeciderFunc
	metrics  *metrics.Recorder
	tracer   trace.Tracer
	progress func(*RemediationAction, *RemediationResult)
}

// EngineOption customizes engine construction.
type EngineOption func(*engineOptions)

// WithRunner substitutes the infrastructure tool invocation, primarily
// for tests.
func WithRunner(runner Runner) EngineOption {
	return func(o *engineOptions) { o.runner = runner }
}

// WithRewriter substitutes the configuration rewriter.
func WithRewriter(rewriter Rewriter) EngineOption {
	return func(o *engineOptions) { o.rewriter = rewriter }
}

// WithApprovalDecider wires an interactive approval source into the
// gate.
func WithApprovalDecider(decider DeciderFunc) EngineOption {
	return func(o *engineOptions) { o.decider = decider }
}

// WithMetrics wires a metrics recorder.
func WithMetrics(recorder *metrics.Recorder) EngineOption {
	return func(o *engineOptions) { o.metrics = recorder }
}

// WithTracer wires a tracer for per-plan and per-action spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(o *engineOptions) { o.tracer = tracer }
}

// WithProgress registers a callback invoked as each action reaches a
// terminal status, for progress reporting.
func WithProgress(progress func(*RemediationAction, *RemediationResult)) EngineOption {
	return func(o *engineOptions) { o.progress = progress }
}

// NewEngine builds a fully wired engine from validated configuration.
// Unless substituted, the runner shells out to the configured binary
// with pre-change state backups, and the rewriter edits .tf files
// under the working directory.
func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	var options engineOptions
	for _, opt := range opts {
		opt(&options)
	}

	auditLog, err := audit.NewLog(cfg.Audit.Dir)
	if err != nil {
		return nil, err
	}

	runner := options.runner
	if runner == nil {
		backups := terraform.NewBackupManager(cfg.Terraform.WorkDir, cfg.Terraform.BackupDir, cfg.Terraform.BackupRetention)
		cli, err := terraform.NewCLIRunner(terraform.RunnerOptions{
			WorkDir:            cfg.Terraform.WorkDir,
			BinaryPath:         cfg.Terraform.BinaryPath,
			VarFile:            cfg.Terraform.VarFile,
			Env:                cfg.Terraform.Env,
			BackupManager:      backups,
			BackupBeforeChange: cfg.Remediation.BackupBeforeChange,
		})
		if err != nil {
			return nil, err
		}
		runner = cli
	}

	rewriter := options.rewriter
	if rewriter == nil {
		rewriter = terraform.NewFileRewriter(cfg.Terraform.WorkDir)
	}

	var gateOpts []GateOption
	if options.decider != nil {
		gateOpts = append(gateOpts, WithDecider(options.decider))
	}
	gate, err := NewApprovalGate(&cfg.Remediation, gateOpts...)
	if err != nil {
		return nil, err
	}

	executor, err := NewExecutor(ExecutorOptions{
		Runner:     runner,
		Rewriter:   rewriter,
		Gate:       gate,
		Audit:      auditLog,
		Metrics:    options.metrics,
		Tracer:     options.tracer,
		Config:     &cfg.Remediation,
		OnProgress: options.progress,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		planner:  NewPlanBuilder(&cfg.Remediation),
		executor: executor,
		gate:     gate,
		auditLog: auditLog,
		store:    NewPlanStore(filepath.Join(cfg.Terraform.WorkDir, ".driftguard", "plans")),
		metrics:  options.metrics,
		tracer:   options.tracer,
		log:      logger.New("engine"),
	}, nil
}

// CreatePlan builds a plan from drift results and persists it.
func (e *Engine) CreatePlan(driftResults []drift.DriftResult, scanID string) (*RemediationPlan, error) {
	_, span := e.startSpan(context.Background(), "remediation.create_plan",
		attribute.String("scan_id", scanID),
		attribute.Int("drift_results", len(driftResults)))
	defer span.End()

	plan, err := e.planner.CreatePlan(driftResults, scanID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("total_actions", plan.TotalActions))

	if err := e.store.Save(plan); err != nil {
		return nil, err
	}
	e.metrics.PlanCreated(plan.TotalActions)
	e.auditLog.Info(plan.ID, "", "remediation plan created", map[string]interface{}{
		"scan_id":           scanID,
		"total_actions":     plan.TotalActions,
		"safe_actions":      plan.SafeActions,
		"critical_actions":  plan.CriticalActions,
		"requires_approval": plan.RequiresApproval,
	})
	return plan, nil
}

// ExecutePlan runs the plan and persists its final state.
func (e *Engine) ExecutePlan(ctx context.Context, plan *RemediationPlan) ([]RemediationResult, error) {
	results, err := e.executor.ExecutePlan(ctx, plan)
	if err != nil {
		return nil, err
	}
	if err := e.store.Save(plan); err != nil {
		e.log.Error("failed to persist executed plan",
			logger.String("plan_id", plan.ID),
			logger.Error(err))
	}
	return results, nil
}

// ApproveAction marks one pending action approved and persists the
// plan, so a later invocation executes it without re-gating.
func (e *Engine) ApproveAction(planID, actionID, approver string) (*RemediationPlan, error) {
	plan, action, err := e.loadAction(planID, actionID)
	if err != nil {
		return nil, err
	}
	if err := action.SetStatus(StatusApproved); err != nil {
		return nil, err
	}
	if err := e.store.Save(plan); err != nil {
		return nil, err
	}
	e.auditLog.Info(planID, actionID, "remediation action approved out-of-band", map[string]interface{}{
		"approver": approver,
		"resource": action.ResourceName,
		"severity": action.Severity.String(),
	})
	return plan, nil
}

// DenyAction cancels one pending action and persists the plan.
func (e *Engine) DenyAction(planID, actionID, approver, reason string) (*RemediationPlan, error) {
	plan, action, err := e.loadAction(planID, actionID)
	if err != nil {
		return nil, err
	}
	if err := action.SetStatus(StatusCancelled); err != nil {
		return nil, err
	}
	if err := e.store.Save(plan); err != nil {
		return nil, err
	}
	e.auditLog.Warn(planID, actionID, "remediation action denied out-of-band", map[string]interface{}{
		"approver": approver,
		"reason":   reason,
		"resource": action.ResourceName,
	})
	return plan, nil
}

func (e *Engine) loadAction(planID, actionID string) (*RemediationPlan, *RemediationAction, error) {
	plan, err := e.store.Load(planID)
	if err != nil {
		return nil, nil, err
	}
	action := plan.ActionByID(actionID)
	if action == nil {
		return nil, nil, fmt.Errorf("action %s not found in plan %s", actionID, planID)
	}
	return plan, action, nil
}

// LoadPlan reads a persisted plan.
func (e *Engine) LoadPlan(id string) (*RemediationPlan, error) {
	return e.store.Load(id)
}

// ListPlans returns all persisted plans, newest first.
func (e *Engine) ListPlans() ([]*RemediationPlan, error) {
	return e.store.List()
}

// Gate exposes the approval gate for in-process decisions.
func (e *Engine) Gate() *ApprovalGate {
	return e.gate
}

// Audit exposes the audit trail.
func (e *Engine) Audit() *audit.Log {
	return e.auditLog
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

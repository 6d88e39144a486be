package remediation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/logger"
)

// PlanBuilder turns drift results into an ordered remediation plan.
// Plan construction never touches live infrastructure; it only reads
// the remediation policy.
type PlanBuilder struct {
	classifier *Classifier
	cfg        *config.RemediationConfig
	log        logger.Logger
}

// NewPlanBuilder creates a PlanBuilder governed by the given policy.
func NewPlanBuilder(cfg *config.RemediationConfig) *PlanBuilder {
	return &PlanBuilder{
		classifier: NewClassifier(),
		cfg:        cfg,
		log:        logger.New("planner"),
	}
}

// CreatePlan classifies every drifted property, applies the resource
// and destructive-action filters, and computes the severity-ascending
// execution order.
func (b *PlanBuilder) CreatePlan(driftResults []drift.DriftResult, scanID string) (*RemediationPlan, error) {
	if scanID == "" {
		return nil, fmt.Errorf("scan id is required")
	}

	plan := &RemediationPlan{
		ID:          uuid.New().String(),
		ScanID:      scanID,
		CreatedAt:   time.Now().UTC(),
		DryRun:      b.cfg.DryRun,
		AutoApprove: b.cfg.AutoApprove,
		Status:      PlanStatusPending,
	}

	for _, result := range driftResults {
		if !result.HasDrift {
			continue
		}
		for _, property := range result.DriftedProperties {
			action := b.buildAction(result, property)
			if action == nil {
				continue
			}
			if !b.keepAction(action) {
				continue
			}
			plan.Actions = append(plan.Actions, action)
		}
	}

	plan.TotalActions = len(plan.Actions)
	for _, action := range plan.Actions {
		if action.Severity == SeveritySafe {
			plan.SafeActions++
		}
		if action.Severity == SeverityCritical {
			plan.CriticalActions++
		}
		if action.RequiresApproval && !b.cfg.AutoApprove {
			plan.RequiresApproval++
		}
	}

	plan.ExecutionOrder = executionOrder(plan.Actions)

	b.log.Info("remediation plan created",
		logger.String("plan_id", plan.ID),
		logger.String("scan_id", scanID),
		logger.Int("total_actions", plan.TotalActions),
		logger.Int("safe_actions", plan.SafeActions),
		logger.Int("critical_actions", plan.CriticalActions),
		logger.Int("requires_approval", plan.RequiresApproval),
		logger.Bool("dry_run", plan.DryRun))

	return plan, nil
}

// buildAction classifies one drifted property. Returns nil for
// ignorable drift.
func (b *PlanBuilder) buildAction(result drift.DriftResult, property drift.DriftedProperty) *RemediationAction {
	verdict := b.classifier.Classify(result.ResourceName, property.PropertyPath, property.ChangeType)
	if verdict.Strategy == StrategyIgnore {
		b.log.Debug("ignoring read-only property drift",
			logger.String("resource", result.ResourceName),
			logger.String("property", property.PropertyPath))
		return nil
	}

	return &RemediationAction{
		ID:               uuid.New().String(),
		DriftID:          result.ResourceID,
		ResourceName:     result.ResourceName,
		ResourceType:     verdict.ResourceCategory,
		PropertyPath:     property.PropertyPath,
		Strategy:         verdict.Strategy,
		Severity:         verdict.Severity,
		CurrentValue:     property.ActualValue,
		DesiredValue:     property.ExpectedValue,
		Description:      describeAction(result, property, verdict),
		RequiresApproval: verdict.RequiresApproval,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC(),
	}
}

// keepAction applies the include/exclude resource filters and the
// destructive-action policy.
func (b *PlanBuilder) keepAction(action *RemediationAction) bool {
	if len(b.cfg.IncludeResources) > 0 && !matchesAny(action.ResourceName, b.cfg.IncludeResources) {
		return false
	}
	if matchesAny(action.ResourceName, b.cfg.ExcludeResources) {
		return false
	}
	if action.Severity == SeverityCritical && !b.cfg.DestructiveActionsAllowed {
		b.log.Warn("dropping critical action: destructive actions not allowed",
			logger.String("resource", action.ResourceName),
			logger.String("property", action.PropertyPath))
		return false
	}
	return true
}

func matchesAny(resourceName string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(resourceName, pattern) {
			return true
		}
	}
	return false
}

// executionOrder sorts action ids ascending by severity. The sort is
// stable: equal-severity actions keep the order they were produced in,
// so a partial run always leaves the safest possible state behind.
func executionOrder(actions []*RemediationAction) []string {
	indexes := make([]int, len(actions))
	for i := range actions {
		indexes[i] = i
	}
	sort.SliceStable(indexes, func(a, b int) bool {
		return actions[indexes[a]].Severity < actions[indexes[b]].Severity
	})

	order := make([]string, len(actions))
	for i, idx := range indexes {
		order[i] = actions[idx].ID
	}
	return order
}

func describeAction(result drift.DriftResult, property drift.DriftedProperty, verdict Classification) string {
	switch {
	case property.ChangeType == drift.ChangeTypeRemoved:
		return fmt.Sprintf("Recreate %s: %s was removed outside of Terraform", result.ResourceName, property.PropertyPath)
	case verdict.Strategy == StrategyManual:
		return fmt.Sprintf("Manually review %s on %s: sensitive value drifted", property.PropertyPath, result.ResourceName)
	default:
		return fmt.Sprintf("Revert %s on %s from %v to %v", property.PropertyPath, result.ResourceName,
			property.ActualValue, property.ExpectedValue)
	}
}

package remediation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Severity classifies the risk of a remediation action, ordered
// ascending from SeveritySafe to SeverityCritical.
type Severity int

const (
	SeveritySafe Severity = iota
	SeverityLowRisk
	SeverityMediumRisk
	SeverityHighRisk
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeveritySafe:       "safe",
	SeverityLowRisk:    "low_risk",
	SeverityMediumRisk: "medium_risk",
	SeverityHighRisk:   "high_risk",
	SeverityCritical:   "critical",
}

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalJSON encodes the severity as its string name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its string name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity converts a severity name to its value. Names are
// case-insensitive; both "low_risk" and "low-risk" forms are accepted.
func ParseSeverity(name string) (Severity, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for sev, n := range severityNames {
		if n == normalized {
			return sev, nil
		}
	}
	return SeveritySafe, fmt.Errorf("unknown severity %q", name)
}

// AllSeverities returns every severity in ascending risk order.
func AllSeverities() []Severity {
	return []Severity{SeveritySafe, SeverityLowRisk, SeverityMediumRisk, SeverityHighRisk, SeverityCritical}
}

// Strategy identifies the kind of corrective operation for an action.
type Strategy string

const (
	// StrategyTerraformUpdate rewrites the declarative source to match
	// observed state. No classification rule currently emits it; actions
	// carrying it are constructed explicitly by callers.
	StrategyTerraformUpdate Strategy = "terraform_update"
	// StrategyTerraformApply mutates live infrastructure back to the
	// declared configuration.
	StrategyTerraformApply Strategy = "terraform_apply"
	// StrategyManual marks drift that must be corrected by a human.
	StrategyManual Strategy = "manual"
	// StrategyIgnore drops the drifted property; no action is planned.
	StrategyIgnore Strategy = "ignore"
)

// ActionStatus is the per-action state machine position.
type ActionStatus string

const (
	StatusPending    ActionStatus = "pending"
	StatusApproved   ActionStatus = "approved"
	StatusCancelled  ActionStatus = "cancelled"
	StatusInProgress ActionStatus = "in_progress"
	StatusCompleted  ActionStatus = "completed"
	StatusFailed     ActionStatus = "failed"
	StatusRolledBack ActionStatus = "rolled_back"
	StatusSkipped    ActionStatus = "skipped"
)

// validTransitions encodes the action state machine. Absent statuses
// are terminal.
var validTransitions = map[ActionStatus][]ActionStatus{
	StatusPending:    {StatusApproved, StatusCancelled, StatusInProgress, StatusSkipped},
	StatusApproved:   {StatusInProgress, StatusCancelled, StatusSkipped},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusRolledBack},
}

// CanTransition reports whether an action may move from one status to
// another.
func CanTransition(from, to ActionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from the
// status.
func (s ActionStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// PlanStatus is the aggregate status of a remediation plan.
type PlanStatus string

const (
	PlanStatusPending    PlanStatus = "pending"
	PlanStatusInProgress PlanStatus = "in_progress"
	PlanStatusCompleted  PlanStatus = "completed"
	PlanStatusFailed     PlanStatus = "failed"
)

// RollbackData is the single backup handle recorded on an action after
// a successful pre-change state backup. The backup file path and the
// rollback pointer always reference the same backup instance.
type RollbackData struct {
	BackupID    string    `json:"backup_id"`
	StateBackup string    `json:"state_backup"`
	CreatedAt   time.Time `json:"created_at"`
}

// RemediationAction is the unit of work correcting one drifted property
// on one resource.
type RemediationAction struct {
	ID               string        `json:"id"`
	DriftID          string        `json:"drift_id"`
	ResourceName     string        `json:"resource_name"`
	ResourceType     string        `json:"resource_type"`
	PropertyPath     string        `json:"property_path"`
	Strategy         Strategy      `json:"strategy"`
	Severity         Severity      `json:"severity"`
	CurrentValue     interface{}   `json:"current_value"`
	DesiredValue     interface{}   `json:"desired_value"`
	Description      string        `json:"description"`
	RequiresApproval bool          `json:"requires_approval"`
	Status           ActionStatus  `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	ExecutedAt       *time.Time    `json:"executed_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Error            string        `json:"error,omitempty"`
	RollbackData     *RollbackData `json:"rollback_data,omitempty"`
}

// SetStatus transitions the action to a new status, enforcing the state
// machine.
func (a *RemediationAction) SetStatus(to ActionStatus) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("invalid action status transition %s -> %s for action %s", a.Status, to, a.ID)
	}
	a.Status = to
	return nil
}

// RemediationPlan is an ordered batch of actions for one scan with
// aggregate risk statistics. RequiresApproval counts the actions that
// will be gated at execution time; cancelled and skipped actions are
// tracked separately from success/failure so callers can distinguish
// "nothing failed" from "nothing ran".
type RemediationPlan struct {
	ID               string               `json:"id"`
	ScanID           string               `json:"scan_id"`
	CreatedAt        time.Time            `json:"created_at"`
	Actions          []*RemediationAction `json:"actions"`
	TotalActions     int                  `json:"total_actions"`
	SafeActions      int                  `json:"safe_actions"`
	RequiresApproval int                  `json:"requires_approval"`
	CriticalActions  int                  `json:"critical_actions"`
	DryRun           bool                 `json:"dry_run"`
	AutoApprove      bool                 `json:"auto_approve"`
	ExecutionOrder   []string             `json:"execution_order"`
	Status           PlanStatus           `json:"status"`
	SuccessCount     int                  `json:"success_count"`
	FailureCount     int                  `json:"failure_count"`
	CancelledCount   int                  `json:"cancelled_count"`
	SkippedCount     int                  `json:"skipped_count"`
	StartedAt        *time.Time           `json:"started_at,omitempty"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
}

// ActionByID returns the plan action with the given id, or nil.
func (p *RemediationPlan) ActionByID(id string) *RemediationAction {
	for _, action := range p.Actions {
		if action.ID == id {
			return action
		}
	}
	return nil
}

// RemediationResult captures the outcome of one attempted action.
// Cancelled and skipped actions are never attempted and produce no
// result.
type RemediationResult struct {
	PlanID            string             `json:"plan_id"`
	Action            *RemediationAction `json:"action"`
	Success           bool               `json:"success"`
	Duration          time.Duration      `json:"duration"`
	Output            string             `json:"output,omitempty"`
	Error             string             `json:"error,omitempty"`
	RollbackPerformed bool               `json:"rollback_performed,omitempty"`
}

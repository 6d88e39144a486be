package remediation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/logger"
)

// DeciderFunc answers an approval request interactively. The executor
// blocks until it returns, so implementations should respect ctx.
type DeciderFunc func(ctx context.Context, action *RemediationAction) (bool, error)

// ApprovalDecision records the resolution of one approval request.
type ApprovalDecision struct {
	Approved  bool      `json:"approved"`
	Approver  string    `json:"approver"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// ApprovalRequest tracks one action waiting for sign-off. ExpiresAt is
// advisory only; expiry is never enforced automatically.
type ApprovalRequest struct {
	ID        string            `json:"id"`
	ActionID  string            `json:"action_id"`
	Requester string            `json:"requester"`
	Severity  Severity          `json:"severity"`
	Summary   string            `json:"summary"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Decision  *ApprovalDecision `json:"decision,omitempty"`
}

// ApprovalGate decides whether an action requiring sign-off may
// proceed. Resolution order: a recorded out-of-band decision wins,
// then severities outside the approval policy are granted, then an
// injected decider is consulted, and everything else is denied.
type ApprovalGate struct {
	mu       sync.Mutex
	requests map[string]*ApprovalRequest
	required map[Severity]bool
	decider  DeciderFunc
	timeout  time.Duration
	log      logger.Logger
}

// GateOption customizes an ApprovalGate.
type GateOption func(*ApprovalGate)

// WithDecider wires an interactive decision source into the gate.
func WithDecider(decider DeciderFunc) GateOption {
	return func(g *ApprovalGate) {
		g.decider = decider
	}
}

// NewApprovalGate builds the gate from the remediation policy. Unknown
// severity names in RequireApprovalFor are a configuration error.
func NewApprovalGate(cfg *config.RemediationConfig, opts ...GateOption) (*ApprovalGate, error) {
	required := make(map[Severity]bool, len(cfg.RequireApprovalFor))
	for _, name := range cfg.RequireApprovalFor {
		severity, err := ParseSeverity(name)
		if err != nil {
			return nil, fmt.Errorf("invalid approval policy: %w", err)
		}
		required[severity] = true
	}

	gate := &ApprovalGate{
		requests: make(map[string]*ApprovalRequest),
		required: required,
		timeout:  cfg.ApprovalTimeout,
		log:      logger.New("approval"),
	}
	for _, opt := range opts {
		opt(gate)
	}
	return gate, nil
}

// RequestApproval registers a request for the action and resolves it
// synchronously. The returned decision is final for this execution.
func (g *ApprovalGate) RequestApproval(ctx context.Context, action *RemediationAction) (bool, error) {
	request := g.register(action)

	if request.Decision != nil {
		g.log.Info("approval request resolved by recorded decision",
			logger.String("action_id", action.ID),
			logger.Bool("approved", request.Decision.Approved),
			logger.String("approver", request.Decision.Approver))
		return request.Decision.Approved, nil
	}

	if !g.required[action.Severity] {
		g.decide(action.ID, true, "policy", fmt.Sprintf("severity %s outside approval policy", action.Severity))
		return true, nil
	}

	if g.decider != nil {
		approved, err := g.decider(ctx, action)
		if err != nil {
			return false, fmt.Errorf("approval decider failed: %w", err)
		}
		g.decide(action.ID, approved, "interactive", "")
		return approved, nil
	}

	// No decision source available: deny by default.
	g.decide(action.ID, false, "default", "no approval source configured")
	g.log.Warn("approval denied by default",
		logger.String("action_id", action.ID),
		logger.String("resource", action.ResourceName),
		logger.String("severity", action.Severity.String()))
	return false, nil
}

// Approve records an out-of-band approval for the action, creating the
// request record if none exists yet.
func (g *ApprovalGate) Approve(actionID, approver string) error {
	return g.recordDecision(actionID, true, approver, "")
}

// Deny records an out-of-band denial for the action.
func (g *ApprovalGate) Deny(actionID, approver, reason string) error {
	return g.recordDecision(actionID, false, approver, reason)
}

// Pending returns the requests that have not been decided yet.
func (g *ApprovalGate) Pending() []*ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	var pending []*ApprovalRequest
	for _, request := range g.requests {
		if request.Decision == nil {
			pending = append(pending, request)
		}
	}
	return pending
}

// Request returns the recorded request for an action, or nil.
func (g *ApprovalGate) Request(actionID string) *ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[actionID]
}

func (g *ApprovalGate) register(action *RemediationAction) *ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.requests[action.ID]; ok {
		return existing
	}

	request := &ApprovalRequest{
		ID:        uuid.New().String(),
		ActionID:  action.ID,
		Requester: "executor",
		Severity:  action.Severity,
		Summary:   action.Description,
		CreatedAt: time.Now().UTC(),
	}
	if g.timeout > 0 {
		expires := request.CreatedAt.Add(g.timeout)
		request.ExpiresAt = &expires
	}
	g.requests[action.ID] = request
	return request
}

func (g *ApprovalGate) decide(actionID string, approved bool, approver, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	request, ok := g.requests[actionID]
	if !ok {
		return
	}
	request.Decision = &ApprovalDecision{
		Approved:  approved,
		Approver:  approver,
		Reason:    reason,
		DecidedAt: time.Now().UTC(),
	}
}

func (g *ApprovalGate) recordDecision(actionID string, approved bool, approver, reason string) error {
	if actionID == "" {
		return fmt.Errorf("action id is required")
	}
	if approver == "" {
		return fmt.Errorf("approver is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	request, ok := g.requests[actionID]
	if !ok {
		request = &ApprovalRequest{
			ID:        uuid.New().String(),
			ActionID:  actionID,
			Requester: approver,
			CreatedAt: time.Now().UTC(),
		}
		g.requests[actionID] = request
	}
	if request.Decision != nil {
		return fmt.Errorf("action %s already has a recorded decision", actionID)
	}

	request.Decision = &ApprovalDecision{
		Approved:  approved,
		Approver:  approver,
		Reason:    reason,
		DecidedAt: time.Now().UTC(),
	}
	g.log.Info("out-of-band approval decision recorded",
		logger.String("action_id", actionID),
		logger.Bool("approved", approved),
		logger.String("approver", approver))
	return nil
}

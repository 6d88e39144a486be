package remediation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/driftguard/driftguard/internal/logger"
)

// PlanStore persists remediation plans as one JSON document per plan,
// so approvals and executions can span process invocations.
type PlanStore struct {
	dir string
	log logger.Logger
}

// NewPlanStore creates a store rooted at dir. The directory is created
// lazily on first save.
func NewPlanStore(dir string) *PlanStore {
	return &PlanStore{
		dir: dir,
		log: logger.New("planstore"),
	}
}

// Dir returns the store directory.
func (s *PlanStore) Dir() string {
	return s.dir
}

// Save writes the plan, replacing any previous version.
func (s *PlanStore) Save(plan *RemediationPlan) error {
	if plan == nil || plan.ID == "" {
		return fmt.Errorf("plan with an id is required")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create plan directory: %w", err)
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan %s: %w", plan.ID, err)
	}
	if err := os.WriteFile(s.path(plan.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write plan %s: %w", plan.ID, err)
	}
	return nil
}

// Load reads one plan by id.
func (s *PlanStore) Load(id string) (*RemediationPlan, error) {
	if id == "" {
		return nil, fmt.Errorf("plan id is required")
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plan %s not found", id)
		}
		return nil, fmt.Errorf("failed to read plan %s: %w", id, err)
	}

	var plan RemediationPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan %s: %w", id, err)
	}
	return &plan, nil
}

// List returns every stored plan, newest first. Unreadable files are
// skipped with a warning rather than failing the listing.
func (s *PlanStore) List() ([]*RemediationPlan, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plan directory: %w", err)
	}

	var plans []*RemediationPlan
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		plan, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.log.Warn("skipping unreadable plan file",
				logger.String("file", entry.Name()),
				logger.Error(err))
			continue
		}
		plans = append(plans, plan)
	}

	sort.Slice(plans, func(a, b int) bool {
		return plans[a].CreatedAt.After(plans[b].CreatedAt)
	})
	return plans, nil
}

// Delete removes a stored plan.
func (s *PlanStore) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("plan id is required")
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("plan %s not found", id)
		}
		return fmt.Errorf("failed to delete plan %s: %w", id, err)
	}
	return nil
}

func (s *PlanStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Package drift defines the records produced by the drift detection
// collaborator and consumed by the remediation engine, plus a loader
// for serialized scan reports.
package drift

import "time"

// ChangeType describes how a property diverged from its declared value.
type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "added"
	ChangeTypeRemoved  ChangeType = "removed"
	ChangeTypeModified ChangeType = "modified"
)

// DriftedProperty is one property-level difference between declared and
// observed configuration.
type DriftedProperty struct {
	PropertyPath  string      `json:"property_path" yaml:"property_path"`
	ExpectedValue interface{} `json:"expected_value" yaml:"expected_value"`
	ActualValue   interface{} `json:"actual_value" yaml:"actual_value"`
	ChangeType    ChangeType  `json:"change_type" yaml:"change_type"`
}

// DriftResult is the per-resource drift record. Only records with
// HasDrift set are considered by the remediation planner.
type DriftResult struct {
	ResourceID        string            `json:"resource_id" yaml:"resource_id"`
	ResourceName      string            `json:"resource_name" yaml:"resource_name"`
	ResourceType      string            `json:"resource_type" yaml:"resource_type"`
	HasDrift          bool              `json:"has_drift" yaml:"has_drift"`
	Severity          string            `json:"severity,omitempty" yaml:"severity,omitempty"`
	DriftedProperties []DriftedProperty `json:"drifted_properties" yaml:"drifted_properties"`
}

// ScanReport is a serialized drift scan: one detection pass over a set
// of resources.
type ScanReport struct {
	ScanID    string        `json:"scan_id" yaml:"scan_id"`
	Timestamp time.Time     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Resources []DriftResult `json:"resources" yaml:"resources"`
}

// Drifted returns only the resources that actually drifted.
func (r *ScanReport) Drifted() []DriftResult {
	var drifted []DriftResult
	for _, res := range r.Resources {
		if res.HasDrift {
			drifted = append(drifted, res)
		}
	}
	return drifted
}

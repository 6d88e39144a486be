package remediation

import (
	"strings"

	"github.com/driftguard/driftguard/internal/drift"
)

// Classification is the Classifier's verdict for one drifted property.
type Classification struct {
	Strategy         Strategy
	Severity         Severity
	RequiresApproval bool
	ResourceCategory string
}

// severityRule maps property path keywords to a severity. Rules are
// evaluated in declaration order and the first match wins, so the
// slice ordering is load-bearing.
type severityRule struct {
	keywords []string
	severity Severity
}

// severityRules holds the ordered severity classification table.
// Matching is case-insensitive substring containment over the whole
// property path. The removed/delete rule is evaluated separately ahead
// of this table because it also inspects the change type.
var severityRules = []severityRule{
	{keywords: []string{"security_group", "ingress", "egress", "instance_type", "subnet", "vpc"}, severity: SeverityHighRisk},
	{keywords: []string{"policy", "role", "permission", "encryption"}, severity: SeverityMediumRisk},
	{keywords: []string{"description", "name", "monitoring"}, severity: SeverityLowRisk},
	{keywords: []string{"tag", "label"}, severity: SeveritySafe},
}

// readOnlyMarkers are property path segments that identify values the
// cloud provider owns. Matching is case-sensitive against individual
// path segments (with list indexes stripped), either exactly or as a
// "_marker" suffix: "tags.Owner" is drifted user data, "instance_id"
// is not.
var readOnlyMarkers = []string{
	"arn",
	"id",
	"created_at",
	"updated_at",
	"last_modified",
	"creation_date",
	"owner",
	"state",
	"status",
}

// secretMarkers identify properties whose values must never flow
// through automated tooling.
var secretMarkers = []string{
	"password",
	"secret",
	"private_key",
	"certificate",
}

// categoryRule maps resource name keywords to a coarse resource
// category. First match wins.
type categoryRule struct {
	keywords []string
	category string
}

var categoryRules = []categoryRule{
	{keywords: []string{"ec2", "instance"}, category: "compute"},
	{keywords: []string{"s3", "bucket"}, category: "storage"},
	{keywords: []string{"vpc", "subnet", "sg"}, category: "network"},
	{keywords: []string{"rds", "db"}, category: "database"},
	{keywords: []string{"iam", "role"}, category: "security"},
}

const defaultCategory = "compute"

// Classifier maps one drifted property to a remediation strategy and a
// risk severity. It is a pure function of its inputs: no configuration,
// no I/O.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify determines strategy, severity and approval requirement for
// a single drifted property. A StrategyIgnore verdict means no action
// should be planned.
func (c *Classifier) Classify(resourceName, propertyPath string, changeType drift.ChangeType) Classification {
	severity := c.classifySeverity(propertyPath, changeType)
	return Classification{
		Strategy:         c.classifyStrategy(propertyPath),
		Severity:         severity,
		RequiresApproval: severity != SeveritySafe,
		ResourceCategory: c.InferResourceCategory(resourceName),
	}
}

func (c *Classifier) classifySeverity(propertyPath string, changeType drift.ChangeType) Severity {
	path := strings.ToLower(propertyPath)

	// Removed resources and anything deletion-shaped outrank every
	// keyword rule.
	if changeType == drift.ChangeTypeRemoved || strings.Contains(path, "delete") {
		return SeverityCritical
	}

	for _, rule := range severityRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(path, keyword) {
				return rule.severity
			}
		}
	}
	return SeverityMediumRisk
}

func (c *Classifier) classifyStrategy(propertyPath string) Strategy {
	if isReadOnlyPath(propertyPath) {
		return StrategyIgnore
	}

	path := strings.ToLower(propertyPath)
	for _, marker := range secretMarkers {
		if strings.Contains(path, marker) {
			return StrategyManual
		}
	}

	// Live apply is always preferred over source rewrite for
	// automatable drift.
	return StrategyTerraformApply
}

// InferResourceCategory derives the coarse resource category from the
// resource name.
func (c *Classifier) InferResourceCategory(resourceName string) string {
	name := strings.ToLower(resourceName)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(name, keyword) {
				return rule.category
			}
		}
	}
	return defaultCategory
}

func isReadOnlyPath(propertyPath string) bool {
	for _, segment := range splitPathSegments(propertyPath) {
		for _, marker := range readOnlyMarkers {
			if segment == marker || strings.HasSuffix(segment, "_"+marker) {
				return true
			}
		}
	}
	return false
}

// splitPathSegments breaks "ingress[0].cidr_blocks" into
// ["ingress", "cidr_blocks"].
func splitPathSegments(propertyPath string) []string {
	raw := strings.Split(propertyPath, ".")
	segments := make([]string, 0, len(raw))
	for _, segment := range raw {
		if idx := strings.IndexByte(segment, '['); idx >= 0 {
			segment = segment[:idx]
		}
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

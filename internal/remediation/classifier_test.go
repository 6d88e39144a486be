package remediation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftguard/driftguard/internal/drift"
)

func TestClassifySeverity(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		name         string
		resourceName string
		propertyPath string
		changeType   drift.ChangeType
		wantSeverity Severity
	}{
		{
			name:         "removed resource is critical",
			resourceName: "web-server",
			propertyPath: "_resource",
			changeType:   drift.ChangeTypeRemoved,
			wantSeverity: SeverityCritical,
		},
		{
			name:         "delete keyword is critical",
			resourceName: "web-server",
			propertyPath: "lifecycle.delete_protection",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeverityCritical,
		},
		{
			name:         "ingress rules are high risk",
			resourceName: "aws_security_group.web",
			propertyPath: "ingress[0].cidr_blocks",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeverityHighRisk,
		},
		{
			name:         "instance type is high risk",
			resourceName: "web-server",
			propertyPath: "instance_type",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeverityHighRisk,
		},
		{
			name:         "encryption is medium risk",
			resourceName: "data-bucket",
			propertyPath: "server_side_encryption.enabled",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeverityMediumRisk,
		},
		{
			name:         "iam policy is medium risk",
			resourceName: "app-role",
			propertyPath: "policy_document",
			changeType:   drift.ChangeTypeAdded,
			wantSeverity: SeverityMediumRisk,
		},
		{
			name:         "description is low risk",
			resourceName: "web-server",
			propertyPath: "description",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeverityLowRisk,
		},
		{
			name:         "monitoring is low risk",
			resourceName: "web-server",
			propertyPath: "monitoring.enabled",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeverityLowRisk,
		},
		{
			name:         "tags are safe",
			resourceName: "web-server",
			propertyPath: "tags.Owner",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeveritySafe,
		},
		{
			name:         "labels are safe",
			resourceName: "gke-node",
			propertyPath: "labels.team",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeveritySafe,
		},
		{
			name:         "unknown property defaults to medium risk",
			resourceName: "web-server",
			propertyPath: "ebs_optimized",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeverityMediumRisk,
		},
		{
			name:         "high risk keyword beats tag keyword",
			resourceName: "main-vpc",
			propertyPath: "vpc_tags.env",
			changeType:   drift.ChangeTypeModified,
			wantSeverity: SeverityHighRisk,
		},
		{
			name:         "removed beats every keyword",
			resourceName: "web-server",
			propertyPath: "tags.env",
			changeType:   drift.ChangeTypeRemoved,
			wantSeverity: SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(tt.resourceName, tt.propertyPath, tt.changeType)
			assert.Equal(t, tt.wantSeverity, got.Severity)
			assert.Equal(t, tt.wantSeverity != SeveritySafe, got.RequiresApproval,
				"requiresApproval must equal severity != safe")
		})
	}
}

func TestClassifyStrategy(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		name         string
		propertyPath string
		wantStrategy Strategy
	}{
		{name: "plain property is applied", propertyPath: "instance_type", wantStrategy: StrategyTerraformApply},
		{name: "tag value with read-only casing is applied", propertyPath: "tags.Owner", wantStrategy: StrategyTerraformApply},
		{name: "cidr blocks are applied", propertyPath: "ingress[0].cidr_blocks", wantStrategy: StrategyTerraformApply},
		{name: "arn is ignored", propertyPath: "arn", wantStrategy: StrategyIgnore},
		{name: "bare id is ignored", propertyPath: "id", wantStrategy: StrategyIgnore},
		{name: "suffixed id is ignored", propertyPath: "network_interface.subnet_id", wantStrategy: StrategyIgnore},
		{name: "created_at is ignored", propertyPath: "created_at", wantStrategy: StrategyIgnore},
		{name: "lowercase owner segment is ignored", propertyPath: "owner", wantStrategy: StrategyIgnore},
		{name: "state segment is ignored", propertyPath: "state", wantStrategy: StrategyIgnore},
		{name: "password requires manual handling", propertyPath: "master_password", wantStrategy: StrategyManual},
		{name: "secret requires manual handling", propertyPath: "client_secret", wantStrategy: StrategyManual},
		{name: "private key requires manual handling", propertyPath: "tls.private_key", wantStrategy: StrategyManual},
		{name: "certificate requires manual handling", propertyPath: "certificate_body", wantStrategy: StrategyManual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify("web-server", tt.propertyPath, drift.ChangeTypeModified)
			assert.Equal(t, tt.wantStrategy, got.Strategy)
		})
	}
}

func TestClassifierIsPure(t *testing.T) {
	classifier := NewClassifier()

	first := classifier.Classify("aws_security_group.web", "ingress[0].cidr_blocks", drift.ChangeTypeModified)
	for i := 0; i < 10; i++ {
		again := classifier.Classify("aws_security_group.web", "ingress[0].cidr_blocks", drift.ChangeTypeModified)
		assert.Equal(t, first, again)
	}
}

func TestInferResourceCategory(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		resourceName string
		want         string
	}{
		{resourceName: "ec2-web", want: "compute"},
		{resourceName: "app-instance-1", want: "compute"},
		{resourceName: "s3-logs", want: "storage"},
		{resourceName: "asset-bucket", want: "storage"},
		{resourceName: "main-vpc", want: "network"},
		{resourceName: "private-subnet-a", want: "network"},
		{resourceName: "web-sg", want: "network"},
		{resourceName: "rds-primary", want: "database"},
		{resourceName: "orders-db", want: "database"},
		{resourceName: "iam-deployer", want: "security"},
		{resourceName: "admin-role", want: "security"},
		{resourceName: "unclassified-thing", want: "compute"},
		// First matching rule wins: "instance" appears before the
		// database rules.
		{resourceName: "db-instance", want: "compute"},
	}

	for _, tt := range tests {
		t.Run(tt.resourceName, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.InferResourceCategory(tt.resourceName))
		})
	}
}

func TestSeverityOrdering(t *testing.T) {
	ordered := AllSeverities()
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, int(ordered[i-1]), int(ordered[i]))
	}
	assert.Equal(t, "safe", SeveritySafe.String())
	assert.Equal(t, "critical", SeverityCritical.String())
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input   string
		want    Severity
		wantErr bool
	}{
		{input: "safe", want: SeveritySafe},
		{input: "LOW_RISK", want: SeverityLowRisk},
		{input: "medium-risk", want: SeverityMediumRisk},
		{input: " high_risk ", want: SeverityHighRisk},
		{input: "critical", want: SeverityCritical},
		{input: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

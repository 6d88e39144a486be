package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.False(t, cfg.Remediation.DryRun)
	assert.False(t, cfg.Remediation.AutoApprove)
	assert.Equal(t, 1, cfg.Remediation.MaxConcurrent)
	assert.True(t, cfg.Remediation.RollbackOnError)
	assert.True(t, cfg.Remediation.BackupBeforeChange)
	assert.False(t, cfg.Remediation.DestructiveActionsAllowed)
	assert.Equal(t, []string{"low_risk", "medium_risk", "high_risk", "critical"}, cfg.Remediation.RequireApprovalFor)
	assert.Equal(t, "terraform", cfg.Terraform.BinaryPath)
	assert.Equal(t, 10, cfg.Terraform.BackupRetention)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driftguard.yaml")
	content := `
remediation:
  dry_run: true
  auto_approve: true
  max_concurrent: 4
  continue_on_error: true
  destructive_actions_allowed: true
  include_resources:
    - web
  exclude_resources:
    - legacy
  approval_timeout: 90s
terraform:
  work_dir: /tmp/stacks/prod
  binary_path: /usr/local/bin/terraform
  var_file: prod.tfvars
  env:
    AWS_PROFILE: prod
audit:
  dir: /tmp/audit
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Remediation.DryRun)
	assert.True(t, cfg.Remediation.AutoApprove)
	assert.Equal(t, 4, cfg.Remediation.MaxConcurrent)
	assert.True(t, cfg.Remediation.ContinueOnError)
	assert.True(t, cfg.Remediation.DestructiveActionsAllowed)
	assert.Equal(t, []string{"web"}, cfg.Remediation.IncludeResources)
	assert.Equal(t, []string{"legacy"}, cfg.Remediation.ExcludeResources)
	assert.Equal(t, 90*time.Second, cfg.Remediation.ApprovalTimeout)
	assert.Equal(t, "/tmp/stacks/prod", cfg.Terraform.WorkDir)
	assert.Equal(t, "/usr/local/bin/terraform", cfg.Terraform.BinaryPath)
	assert.Equal(t, "prod.tfvars", cfg.Terraform.VarFile)
	assert.Equal(t, map[string]string{"AWS_PROFILE": "prod"}, cfg.Terraform.Env)
	assert.Equal(t, "/tmp/audit", cfg.Audit.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unspecified keys keep their defaults.
	assert.True(t, cfg.Remediation.RollbackOnError)
	assert.Equal(t, 10, cfg.Terraform.BackupRetention)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "zero max concurrent",
			mutate: func(c *Config) { c.Remediation.MaxConcurrent = 0 },
		},
		{
			name:   "unknown approval severity",
			mutate: func(c *Config) { c.Remediation.RequireApprovalFor = []string{"catastrophic"} },
		},
		{
			name:   "empty work dir",
			mutate: func(c *Config) { c.Terraform.WorkDir = "" },
		},
		{
			name:   "empty binary path",
			mutate: func(c *Config) { c.Terraform.BinaryPath = "" },
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
		},
		{
			name:   "bad tracing exporter",
			mutate: func(c *Config) { c.Telemetry.TracingExporter = "jaeger" },
		},
		{
			name:   "sample rate out of range",
			mutate: func(c *Config) { c.Telemetry.SampleRate = 2.0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remediation: [not a map"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

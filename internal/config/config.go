// Package config loads and validates the engine configuration from
// YAML files and DRIFTGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// RemediationConfig is the process-wide remediation policy. It is
// constructed once per invocation and must not change during a single
// plan execution.
type RemediationConfig struct {
	DryRun                    bool          `mapstructure:"dry_run" json:"dry_run"`
	AutoApprove               bool          `mapstructure:"auto_approve" json:"auto_approve"`
	RequireApprovalFor        []string      `mapstructure:"require_approval_for" json:"require_approval_for" validate:"dive,oneof=safe low_risk medium_risk high_risk critical"`
	MaxConcurrent             int           `mapstructure:"max_concurrent" json:"max_concurrent" validate:"min=1,max=64"`
	ContinueOnError           bool          `mapstructure:"continue_on_error" json:"continue_on_error"`
	RollbackOnError           bool          `mapstructure:"rollback_on_error" json:"rollback_on_error"`
	DestructiveActionsAllowed bool          `mapstructure:"destructive_actions_allowed" json:"destructive_actions_allowed"`
	BackupBeforeChange        bool          `mapstructure:"backup_before_change" json:"backup_before_change"`
	IncludeResources          []string      `mapstructure:"include_resources" json:"include_resources,omitempty"`
	ExcludeResources          []string      `mapstructure:"exclude_resources" json:"exclude_resources,omitempty"`
	ApprovalTimeout           time.Duration `mapstructure:"approval_timeout" json:"approval_timeout"`
}

// TerraformConfig locates the infrastructure tool and its working
// directory. Env carries explicit per-call credentials handed to each
// subprocess; the engine never mutates its own environment.
type TerraformConfig struct {
	WorkDir         string            `mapstructure:"work_dir" json:"work_dir" validate:"required"`
	BinaryPath      string            `mapstructure:"binary_path" json:"binary_path" validate:"required"`
	VarFile         string            `mapstructure:"var_file" json:"var_file,omitempty"`
	BackupDir       string            `mapstructure:"backup_dir" json:"backup_dir" validate:"required"`
	BackupRetention int               `mapstructure:"backup_retention" json:"backup_retention" validate:"min=1"`
	Env             map[string]string `mapstructure:"env" json:"env,omitempty"`
}

// AuditConfig locates the audit log directory.
type AuditConfig struct {
	Dir string `mapstructure:"dir" json:"dir" validate:"required"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `mapstructure:"format" json:"format" validate:"oneof=json console"`
}

// TelemetryConfig controls tracing and the optional metrics listener.
type TelemetryConfig struct {
	TracingEnabled  bool    `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	TracingExporter string  `mapstructure:"tracing_exporter" json:"tracing_exporter" validate:"oneof=console otlp"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint" json:"otlp_endpoint,omitempty"`
	SampleRate      float64 `mapstructure:"sample_rate" json:"sample_rate" validate:"min=0,max=1"`
	MetricsAddr     string  `mapstructure:"metrics_addr" json:"metrics_addr,omitempty"`
}

// Config is the full engine configuration.
type Config struct {
	Remediation RemediationConfig `mapstructure:"remediation" json:"remediation"`
	Terraform   TerraformConfig   `mapstructure:"terraform" json:"terraform"`
	Audit       AuditConfig       `mapstructure:"audit" json:"audit"`
	Logging     LoggingConfig     `mapstructure:"logging" json:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry" json:"telemetry"`
}

// Default returns the configuration used when no file or overrides are
// present: sequential execution, backups and rollback on, destructive
// actions off, approval required for everything above safe.
func Default() *Config {
	return &Config{
		Remediation: RemediationConfig{
			RequireApprovalFor: []string{"low_risk", "medium_risk", "high_risk", "critical"},
			MaxConcurrent:      1,
			RollbackOnError:    true,
			BackupBeforeChange: true,
			ApprovalTimeout:    5 * time.Minute,
		},
		Terraform: TerraformConfig{
			WorkDir:         ".",
			BinaryPath:      "terraform",
			BackupDir:       filepath.Join(".driftguard", "backups"),
			BackupRetention: 10,
		},
		Audit: AuditConfig{
			Dir: filepath.Join(".driftguard", "audit"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			TracingExporter: "console",
			SampleRate:      1.0,
		},
	}
}

// Load reads configuration from the given file (or the default search
// paths when path is empty), applies DRIFTGUARD_* environment
// overrides on top of defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("driftguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("DRIFTGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("remediation.dry_run", defaults.Remediation.DryRun)
	v.SetDefault("remediation.auto_approve", defaults.Remediation.AutoApprove)
	v.SetDefault("remediation.require_approval_for", defaults.Remediation.RequireApprovalFor)
	v.SetDefault("remediation.max_concurrent", defaults.Remediation.MaxConcurrent)
	v.SetDefault("remediation.continue_on_error", defaults.Remediation.ContinueOnError)
	v.SetDefault("remediation.rollback_on_error", defaults.Remediation.RollbackOnError)
	v.SetDefault("remediation.destructive_actions_allowed", defaults.Remediation.DestructiveActionsAllowed)
	v.SetDefault("remediation.backup_before_change", defaults.Remediation.BackupBeforeChange)
	v.SetDefault("remediation.approval_timeout", defaults.Remediation.ApprovalTimeout)
	v.SetDefault("terraform.work_dir", defaults.Terraform.WorkDir)
	v.SetDefault("terraform.binary_path", defaults.Terraform.BinaryPath)
	v.SetDefault("terraform.backup_dir", defaults.Terraform.BackupDir)
	v.SetDefault("terraform.backup_retention", defaults.Terraform.BackupRetention)
	v.SetDefault("audit.dir", defaults.Audit.Dir)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("telemetry.tracing_enabled", defaults.Telemetry.TracingEnabled)
	v.SetDefault("telemetry.tracing_exporter", defaults.Telemetry.TracingExporter)
	v.SetDefault("telemetry.sample_rate", defaults.Telemetry.SampleRate)
}

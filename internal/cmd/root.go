// Package cmd implements the driftguard command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/logger"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	workDir   string

	rootCmd = &cobra.Command{
		Use:   "driftguard",
		Short: "Remediate configuration drift in Terraform-managed infrastructure",
		Long: `driftguard turns drift scan reports into remediation plans and executes
them against Terraform-managed infrastructure. Every drifted property is
classified by risk, risky changes are gated behind approval, state is
backed up before each mutation, and everything is written to an audit
trail.

Typical flow:
  driftguard plan --scan-file drift.json     build and save a plan
  driftguard execute --plan <id>             apply it with approvals
  driftguard audit stats                     inspect the audit trail`,
		Version:       "0.3.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./driftguard.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console)")
	rootCmd.PersistentFlags().StringVar(&workDir, "work-dir", "", "terraform working directory")
}

// loadConfig reads the configuration, applies flag overrides, and
// initializes logging from the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if workDir != "" {
		cfg.Terraform.WorkDir = workDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Initialize(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	return cfg, nil
}

package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/remediation"
)

var (
	planScanFile string
	planScanID   string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build a remediation plan from a drift scan report",
	Long: `Build a remediation plan from a drift scan report.

Each drifted property becomes one remediation action, classified by
severity and assigned a strategy. The plan is saved under the work
directory and can be executed later with 'driftguard execute'.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVarP(&planScanFile, "scan-file", "f", "", "Path to the drift scan report (JSON or YAML)")
	planCmd.Flags().StringVar(&planScanID, "scan-id", "", "Override the scan ID recorded in the plan")
	planCmd.MarkFlagRequired("scan-file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := drift.LoadScanReport(planScanFile)
	if err != nil {
		return err
	}

	scanID := report.ScanID
	if planScanID != "" {
		scanID = planScanID
	}

	drifted := report.Drifted()
	if len(drifted) == 0 {
		fmt.Println(color.GreenString("✅ No drift detected, nothing to remediate"))
		return nil
	}
	fmt.Printf("%s Found %d drifted resources in scan %s\n",
		color.YellowString("⚠️"), len(drifted), scanID)

	engine, err := remediation.NewEngine(cfg)
	if err != nil {
		return err
	}

	plan, err := engine.CreatePlan(report.Resources, scanID)
	if err != nil {
		return err
	}

	renderPlan(plan)
	fmt.Printf("\nRun %s to apply it\n", color.CyanString("driftguard execute --plan %s", plan.ID))
	return nil
}

package cmd

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/remediation"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List saved remediation plans, newest first",
	RunE:  runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := remediation.NewEngine(cfg)
	if err != nil {
		return err
	}

	plans, err := engine.ListPlans()
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Println("No saved plans")
		return nil
	}

	table := newTable([]string{"Plan", "Scan", "Created", "Status", "Actions", "Succeeded", "Failed"})
	for _, plan := range plans {
		table.Append([]string{
			plan.ID,
			plan.ScanID,
			plan.CreatedAt.Format("2006-01-02 15:04"),
			planStatusCell(plan.Status),
			strconv.Itoa(plan.TotalActions),
			strconv.Itoa(plan.SuccessCount),
			strconv.Itoa(plan.FailureCount),
		})
	}
	table.Render()
	return nil
}

func planStatusCell(status remediation.PlanStatus) string {
	switch status {
	case remediation.PlanStatusCompleted:
		return color.GreenString(string(status))
	case remediation.PlanStatusFailed:
		return color.RedString(string(status))
	case remediation.PlanStatusInProgress:
		return color.CyanString(string(status))
	default:
		return string(status)
	}
}

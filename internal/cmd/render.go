package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/driftguard/driftguard/internal/remediation"
)

func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator(" ")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func severityCell(severity remediation.Severity) string {
	switch severity {
	case remediation.SeveritySafe:
		return color.GreenString(severity.String())
	case remediation.SeverityLowRisk:
		return color.CyanString(severity.String())
	case remediation.SeverityMediumRisk:
		return color.YellowString(severity.String())
	case remediation.SeverityHighRisk:
		return color.MagentaString(severity.String())
	case remediation.SeverityCritical:
		return color.RedString(severity.String())
	default:
		return severity.String()
	}
}

func statusCell(status remediation.ActionStatus) string {
	switch status {
	case remediation.StatusCompleted, remediation.StatusApproved:
		return color.GreenString(string(status))
	case remediation.StatusFailed, remediation.StatusRolledBack:
		return color.RedString(string(status))
	case remediation.StatusCancelled:
		return color.YellowString(string(status))
	case remediation.StatusSkipped:
		return color.CyanString(string(status))
	default:
		return string(status)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateValue(value interface{}) string {
	if value == nil {
		return "-"
	}
	s := fmt.Sprintf("%v", value)
	if len(s) > 32 {
		return s[:29] + "..."
	}
	return s
}

func renderPlan(plan *remediation.RemediationPlan) {
	fmt.Printf("\n%s %s\n", color.CyanString("Remediation plan"), plan.ID)
	fmt.Printf("Scan: %s  Created: %s  Status: %s\n\n",
		plan.ScanID, plan.CreatedAt.Format("2006-01-02 15:04"), plan.Status)

	table := newTable([]string{"Action", "Resource", "Property", "Severity", "Strategy", "Desired", "Actual", "Status"})
	for _, id := range plan.ExecutionOrder {
		action := plan.ActionByID(id)
		if action == nil {
			continue
		}
		table.Append([]string{
			shortID(action.ID),
			action.ResourceName,
			action.PropertyPath,
			severityCell(action.Severity),
			string(action.Strategy),
			truncateValue(action.DesiredValue),
			truncateValue(action.CurrentValue),
			statusCell(action.Status),
		})
	}
	table.Render()

	fmt.Printf("\nTotal: %d  Safe: %s  Critical: %s  Needs approval: %s\n",
		plan.TotalActions,
		color.GreenString("%d", plan.SafeActions),
		color.RedString("%d", plan.CriticalActions),
		color.YellowString("%d", plan.RequiresApproval))
}

func renderResults(plan *remediation.RemediationPlan, results []remediation.RemediationResult) {
	if len(results) > 0 {
		fmt.Println()
		table := newTable([]string{"Action", "Resource", "Property", "Status", "Duration", "Error"})
		for _, result := range results {
			errCell := "-"
			if result.Error != "" {
				errCell = truncateValue(result.Error)
			}
			table.Append([]string{
				shortID(result.Action.ID),
				result.Action.ResourceName,
				result.Action.PropertyPath,
				statusCell(result.Action.Status),
				result.Duration.Round(10 * time.Millisecond).String(),
				errCell,
			})
		}
		table.Render()
	}

	fmt.Printf("\nSucceeded: %s  Failed: %s  Cancelled: %s  Skipped: %s\n",
		color.GreenString("%d", plan.SuccessCount),
		color.RedString("%d", plan.FailureCount),
		color.YellowString("%d", plan.CancelledCount),
		color.CyanString("%d", plan.SkippedCount))

	switch plan.Status {
	case remediation.PlanStatusCompleted:
		fmt.Println(color.GreenString("✅ Remediation plan completed"))
	case remediation.PlanStatusFailed:
		fmt.Println(color.RedString("❌ Remediation plan failed"))
	}
}

package cmd

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the remediation audit trail",
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics across all audit partitions",
	RunE:  runAuditStats,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditStatsCmd)
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	auditLog, err := audit.NewLog(cfg.Audit.Dir)
	if err != nil {
		return err
	}
	stats, err := auditLog.Statistics()
	if err != nil {
		return err
	}

	if stats.TotalEntries == 0 {
		fmt.Printf("No audit entries under %s\n", auditLog.Dir())
		return nil
	}

	fmt.Printf("\n%s %s\n\n", color.CyanString("Audit trail"), auditLog.Dir())
	table := newTable([]string{"Metric", "Value"})
	table.Append([]string{"Entries", strconv.Itoa(stats.TotalEntries)})
	table.Append([]string{"Partitions", strconv.Itoa(stats.Partitions)})
	table.Append([]string{"Plans", strconv.Itoa(stats.Plans)})
	table.Append([]string{"Actions", strconv.Itoa(stats.Actions)})
	table.Append([]string{"Successes", color.GreenString("%d", stats.SuccessCount)})
	table.Append([]string{"Errors", color.RedString("%d", stats.ErrorCount)})
	table.Append([]string{"Warnings", color.YellowString("%d", stats.WarnCount)})
	if stats.MeanDuration > 0 {
		table.Append([]string{"Mean action duration", stats.MeanDuration.String()})
	}
	if stats.FirstTimestamp != nil && stats.LastTimestamp != nil {
		table.Append([]string{"First entry", stats.FirstTimestamp.Format("2006-01-02 15:04:05")})
		table.Append([]string{"Last entry", stats.LastTimestamp.Format("2006-01-02 15:04:05")})
	}
	if stats.SkippedLines > 0 {
		table.Append([]string{"Skipped lines", color.YellowString("%d", stats.SkippedLines)})
	}
	table.Render()

	if len(stats.TopErrors) > 0 {
		fmt.Printf("\n%s\n", color.RedString("Top errors"))
		errTable := newTable([]string{"Count", "Message"})
		for _, freq := range stats.TopErrors {
			errTable.Append([]string{strconv.Itoa(freq.Count), freq.Message})
		}
		errTable.Render()
	}
	return nil
}

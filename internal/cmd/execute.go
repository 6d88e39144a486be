package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/drift"
	"github.com/driftguard/driftguard/internal/logger"
	"github.com/driftguard/driftguard/internal/metrics"
	"github.com/driftguard/driftguard/internal/remediation"
	"github.com/driftguard/driftguard/internal/telemetry"
)

var (
	executeScanFile    string
	executePlanID      string
	executeDryRun      bool
	executeAutoApprove bool
	executeYes         bool
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Execute a remediation plan",
	Long: `Execute a remediation plan, safest actions first.

The plan comes either from a saved plan ID (--plan) or is built on the
fly from a drift scan report (--scan-file). Actions that require
approval are confirmed interactively unless --yes or --auto-approve is
set. Use --dry-run to preview the Terraform changes without applying
anything.`,
	RunE: runExecute,
}

func init() {
	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().StringVarP(&executeScanFile, "scan-file", "f", "", "Path to the drift scan report (JSON or YAML)")
	executeCmd.Flags().StringVar(&executePlanID, "plan", "", "ID of a previously saved remediation plan")
	executeCmd.Flags().BoolVar(&executeDryRun, "dry-run", false, "Preview changes without applying them")
	executeCmd.Flags().BoolVar(&executeAutoApprove, "auto-approve", false, "Skip the approval gate for every action")
	executeCmd.Flags().BoolVarP(&executeYes, "yes", "y", false, "Answer yes to every approval prompt")
}

func runExecute(cmd *cobra.Command, args []string) error {
	if executeScanFile == "" && executePlanID == "" {
		return fmt.Errorf("either --scan-file or --plan is required")
	}
	if executeScanFile != "" && executePlanID != "" {
		return fmt.Errorf("--scan-file and --plan are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.TracingEnabled,
		ServiceName: "driftguard",
		Exporter:    cfg.Telemetry.TracingExporter,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		provider.Shutdown(shutdownCtx)
	}()

	recorder := metrics.NewRecorder()
	if cfg.Telemetry.MetricsAddr != "" {
		go serveMetrics(cfg.Telemetry.MetricsAddr, recorder)
	}

	var bar *progressbar.ProgressBar
	opts := []remediation.EngineOption{
		remediation.WithMetrics(recorder),
		remediation.WithTracer(provider.Tracer()),
		remediation.WithProgress(func(action *remediation.RemediationAction, result *remediation.RemediationResult) {
			if bar != nil {
				bar.Add(1)
			}
		}),
	}
	if executeYes {
		opts = append(opts, remediation.WithApprovalDecider(approveAll))
	} else {
		opts = append(opts, remediation.WithApprovalDecider(confirmDecider()))
	}

	engine, err := remediation.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}

	plan, err := resolvePlan(engine)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("dry-run") {
		plan.DryRun = executeDryRun
	}
	if cmd.Flags().Changed("auto-approve") {
		plan.AutoApprove = executeAutoApprove
	}

	renderPlan(plan)
	if plan.TotalActions == 0 {
		fmt.Println(color.GreenString("✅ Plan has no actions, nothing to do"))
		return nil
	}

	mode := "Executing"
	if plan.DryRun {
		mode = "Previewing"
	}
	fmt.Printf("\n%s %d actions...\n", mode, plan.TotalActions)
	bar = newProgressBar(plan.TotalActions)

	results, err := engine.ExecutePlan(ctx, plan)
	fmt.Println()
	if err != nil {
		return err
	}

	renderResults(plan, results)
	if plan.Status == remediation.PlanStatusFailed {
		return fmt.Errorf("remediation plan %s failed: %d of %d actions failed",
			plan.ID, plan.FailureCount, plan.TotalActions)
	}
	return nil
}

func resolvePlan(engine *remediation.Engine) (*remediation.RemediationPlan, error) {
	if executePlanID != "" {
		return engine.LoadPlan(executePlanID)
	}

	report, err := drift.LoadScanReport(executeScanFile)
	if err != nil {
		return nil, err
	}
	return engine.CreatePlan(report.Resources, report.ScanID)
}

// confirmDecider prompts on stdin for each gated action. Answers other
// than y/yes deny the action.
func confirmDecider() remediation.DeciderFunc {
	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, action *remediation.RemediationAction) (bool, error) {
		fmt.Printf("\n%s %s\n", color.YellowString("⚠️  Approval required:"), action.Description)
		fmt.Printf("   Resource: %s  Property: %s  Severity: %s\n",
			action.ResourceName, action.PropertyPath, severityCell(action.Severity))
		fmt.Printf("   Desired: %s  Actual: %s\n",
			truncateValue(action.DesiredValue), truncateValue(action.CurrentValue))
		fmt.Print("   Apply this change? [y/N]: ")

		answer, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes", nil
	}
}

func approveAll(ctx context.Context, action *remediation.RemediationAction) (bool, error) {
	return true, nil
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription("[cyan]Remediating[reset]"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func serveMetrics(addr string, recorder *metrics.Recorder) {
	log := logger.New("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	log.Info("serving Prometheus metrics", logger.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics listener stopped", logger.Error(err))
	}
}

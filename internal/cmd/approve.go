package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftguard/driftguard/internal/remediation"
)

var (
	approveApprover string
	approveDeny     bool
	approveReason   string
)

var approveCmd = &cobra.Command{
	Use:   "approve <plan-id> <action-id>",
	Short: "Approve or deny a remediation action out of band",
	Long: `Approve or deny a single action of a saved remediation plan.

The decision is persisted with the plan, so a later 'driftguard execute
--plan <plan-id>' runs approved actions without prompting again. Action
IDs may be abbreviated to a unique prefix.`,
	Args: cobra.ExactArgs(2),
	RunE: runApprove,
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals <plan-id>",
	Short: "List the actions of a plan that need approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovals,
}

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(approvalsCmd)
	approveCmd.Flags().StringVar(&approveApprover, "approver", "", "Name recorded with the decision")
	approveCmd.Flags().BoolVar(&approveDeny, "deny", false, "Deny the action instead of approving it")
	approveCmd.Flags().StringVar(&approveReason, "reason", "", "Reason recorded with a denial")
	approveCmd.MarkFlagRequired("approver")
}

func runApprove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := remediation.NewEngine(cfg)
	if err != nil {
		return err
	}

	planID, actionID := args[0], args[1]
	actionID, err = expandActionID(engine, planID, actionID)
	if err != nil {
		return err
	}

	if approveDeny {
		plan, err := engine.DenyAction(planID, actionID, approveApprover, approveReason)
		if err != nil {
			return err
		}
		fmt.Printf("%s Action %s denied by %s\n", color.YellowString("🚫"), shortID(actionID), approveApprover)
		renderPlan(plan)
		return nil
	}

	plan, err := engine.ApproveAction(planID, actionID, approveApprover)
	if err != nil {
		return err
	}
	fmt.Printf("%s Action %s approved by %s\n", color.GreenString("✅"), shortID(actionID), approveApprover)
	renderPlan(plan)
	return nil
}

func runApprovals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := remediation.NewEngine(cfg)
	if err != nil {
		return err
	}

	plan, err := engine.LoadPlan(args[0])
	if err != nil {
		return err
	}

	var pending []*remediation.RemediationAction
	for _, action := range plan.Actions {
		if action.RequiresApproval && action.Status == remediation.StatusPending {
			pending = append(pending, action)
		}
	}
	if len(pending) == 0 {
		fmt.Println(color.GreenString("✅ No actions awaiting approval"))
		return nil
	}

	fmt.Printf("%s %d actions awaiting approval in plan %s\n\n",
		color.YellowString("⚠️"), len(pending), plan.ID)
	table := newTable([]string{"Action", "Resource", "Property", "Severity", "Description"})
	for _, action := range pending {
		table.Append([]string{
			shortID(action.ID),
			action.ResourceName,
			action.PropertyPath,
			severityCell(action.Severity),
			action.Description,
		})
	}
	table.Render()
	fmt.Printf("\nApprove with %s\n",
		color.CyanString("driftguard approve %s <action-id> --approver <name>", plan.ID))
	return nil
}

// expandActionID resolves an abbreviated action ID to the full one,
// erroring when the prefix is ambiguous.
func expandActionID(engine *remediation.Engine, planID, prefix string) (string, error) {
	plan, err := engine.LoadPlan(planID)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, action := range plan.Actions {
		if action.ID == prefix {
			return prefix, nil
		}
		if len(prefix) >= 4 && len(action.ID) > len(prefix) && action.ID[:len(prefix)] == prefix {
			matches = append(matches, action.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("action %s not found in plan %s", prefix, planID)
	default:
		return "", fmt.Errorf("action prefix %s is ambiguous in plan %s", prefix, planID)
	}
}

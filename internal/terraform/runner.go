// Package terraform wraps the Terraform CLI binary as a subprocess,
// with pre-change state backups, rollback, and heuristic source
// rewriting.
package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tfjson "github.com/hashicorp/terraform-json"

	"github.com/driftguard/driftguard/internal/logger"
)

// RunnerOptions configures a CLIRunner. Env carries explicit per-call
// credentials appended to each child process environment; the runner
// never mutates the parent process environment.
type RunnerOptions struct {
	WorkDir            string
	BinaryPath         string
	VarFile            string
	Env                map[string]string
	BackupManager      *BackupManager
	BackupBeforeChange bool
}

// CLIRunner invokes the Terraform binary with the configured working
// directory as cwd. The working directory and its state file are owned
// exclusively by one in-flight plan/apply/rollback sequence; callers
// must serialize concurrent runs against the same directory.
type CLIRunner struct {
	workDir    string
	binary     string
	varFile    string
	env        map[string]string
	backups    *BackupManager
	backupLive bool
	log        logger.Logger
}

// ChangeSummary aggregates the resource changes of a machine-readable
// plan.
type ChangeSummary struct {
	Add     int      `json:"add"`
	Change  int      `json:"change"`
	Destroy int      `json:"destroy"`
	Targets []string `json:"targets,omitempty"`
}

// PlanPreview is the result of a read-only preview: the human-readable
// output plus, when obtainable, the parsed change summary.
type PlanPreview struct {
	Output  string         `json:"output"`
	Summary *ChangeSummary `json:"summary,omitempty"`
}

// ApplyResult carries the apply output together with the backup taken
// before the mutation. Backup is set even when the apply itself fails,
// so rollback can still find it.
type ApplyResult struct {
	Output string  `json:"output"`
	Backup *Backup `json:"backup,omitempty"`
}

// NewCLIRunner validates the options and builds a runner.
func NewCLIRunner(opts RunnerOptions) (*CLIRunner, error) {
	if opts.WorkDir == "" {
		return nil, fmt.Errorf("working directory is required")
	}
	binary := opts.BinaryPath
	if binary == "" {
		binary = "terraform"
	}
	return &CLIRunner{
		workDir:    opts.WorkDir,
		binary:     binary,
		varFile:    opts.VarFile,
		env:        opts.Env,
		backups:    opts.BackupManager,
		backupLive: opts.BackupBeforeChange && opts.BackupManager != nil,
		log:        logger.New("terraform"),
	}, nil
}

// TargetAddress derives the -target argument from a resource name.
// Names that are not terraform addresses (no dot) run unscoped.
func TargetAddress(resourceName string) string {
	if strings.Contains(resourceName, ".") {
		return resourceName
	}
	return ""
}

// Init runs terraform init in the working directory.
func (r *CLIRunner) Init(ctx context.Context) (string, error) {
	return r.run(ctx, "init", "-input=false", "-no-color")
}

// Plan runs a read-only preview, optionally scoped to one target
// address, and returns the captured stdout.
func (r *CLIRunner) Plan(ctx context.Context, target string) (string, error) {
	args := r.planArgs(target, "")
	output, err := r.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return output, nil
}

// PlanWithSummary runs a preview through a saved plan file and parses
// the machine-readable form into a change summary. Summary parsing is
// best-effort: its failure degrades to a plain text preview.
func (r *CLIRunner) PlanWithSummary(ctx context.Context, target string) (*PlanPreview, error) {
	planFile := filepath.Join(r.workDir, fmt.Sprintf(".driftguard-%d.tfplan", time.Now().UnixNano()))
	defer os.Remove(planFile)

	output, err := r.run(ctx, r.planArgs(target, planFile)...)
	if err != nil {
		return nil, err
	}

	preview := &PlanPreview{Output: output}
	showOut, err := r.run(ctx, "show", "-json", planFile)
	if err != nil {
		r.log.Warn("failed to read machine-readable plan", logger.Error(err))
		return preview, nil
	}

	summary, err := summarizePlan([]byte(showOut))
	if err != nil {
		r.log.Warn("failed to parse machine-readable plan", logger.Error(err))
		return preview, nil
	}
	preview.Summary = summary
	return preview, nil
}

// Apply takes a state backup first, then runs the mutating apply. A
// failed backup is logged and the apply proceeds; the returned result
// carries the backup handle whenever one was taken, including when the
// apply itself failed.
func (r *CLIRunner) Apply(ctx context.Context, target string) (*ApplyResult, error) {
	result := &ApplyResult{}

	if r.backupLive {
		backup, err := r.backups.Create()
		switch {
		case err == nil:
			result.Backup = backup
		case errors.Is(err, ErrNoStateFile):
			r.log.Warn("no state file present, applying without backup")
		default:
			r.log.Warn("state backup failed, applying without backup", logger.Error(err))
		}
	}

	args := []string{"apply", "-input=false", "-no-color", "-auto-approve", "-lock-timeout=30s"}
	if r.varFile != "" {
		args = append(args, "-var-file="+r.varFile)
	}
	if target != "" {
		args = append(args, "-target="+target)
	}

	output, err := r.run(ctx, args...)
	result.Output = output
	if err != nil {
		return result, err
	}
	return result, nil
}

// Rollback restores the working directory's state from a backup file.
func (r *CLIRunner) Rollback(ctx context.Context, backupPath string) error {
	if backupPath == "" {
		return ErrNoBackup
	}
	if r.backups == nil {
		return fmt.Errorf("rollback unavailable: no backup manager configured")
	}
	return r.backups.Restore(backupPath)
}

func (r *CLIRunner) planArgs(target, outFile string) []string {
	args := []string{"plan", "-input=false", "-no-color", "-lock-timeout=30s"}
	if r.varFile != "" {
		args = append(args, "-var-file="+r.varFile)
	}
	if outFile != "" {
		args = append(args, "-out="+outFile)
	}
	if target != "" {
		args = append(args, "-target="+target)
	}
	return args
}

// run executes one terraform subprocess and returns its stdout. A
// non-zero exit surfaces as an error carrying the trimmed stderr.
func (r *CLIRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.workDir
	cmd.Env = r.buildEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("running terraform",
		logger.String("args", strings.Join(args, " ")),
		logger.String("work_dir", r.workDir))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("terraform %s failed: %w: %s", args[0], err, detail)
	}

	r.log.Debug("terraform finished",
		logger.String("subcommand", args[0]),
		logger.Duration("duration", duration))
	return stdout.String(), nil
}

// buildEnv merges the explicit credential environment over the ambient
// one. Ambient variables are inherited read-only; nothing is ever
// written back to the parent process.
func (r *CLIRunner) buildEnv() []string {
	env := os.Environ()
	if len(r.env) == 0 {
		return env
	}

	keys := make([]string, 0, len(r.env))
	for key := range r.env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+r.env[key])
	}
	return env
}

func summarizePlan(showJSON []byte) (*ChangeSummary, error) {
	var plan tfjson.Plan
	if err := json.Unmarshal(showJSON, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan json: %w", err)
	}

	summary := &ChangeSummary{}
	for _, change := range plan.ResourceChanges {
		if change.Change == nil {
			continue
		}
		actions := change.Change.Actions
		switch {
		case actions.Create():
			summary.Add++
		case actions.Update():
			summary.Change++
		case actions.Delete():
			summary.Destroy++
		case actions.Replace():
			summary.Add++
			summary.Destroy++
		default:
			continue
		}
		summary.Targets = append(summary.Targets, change.Address)
	}
	return summary, nil
}

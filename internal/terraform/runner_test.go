package terraform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTerraform writes an executable shell script standing in for the
// terraform binary and returns its path.
func fakeTerraform(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
sub="$1"
if [ -n "$FAKE_TF_FAIL" ] && [ "$sub" = "$FAKE_TF_FAIL" ]; then
	echo "Error: simulated $sub failure" >&2
	exit 1
fi
case "$sub" in
show)
	cat <<'JSON'
{"format_version":"1.2","resource_changes":[{"address":"aws_instance.web","change":{"actions":["update"]}},{"address":"aws_s3_bucket.logs","change":{"actions":["create"]}},{"address":"aws_instance.legacy","change":{"actions":["delete"]}},{"address":"aws_security_group.old","change":{"actions":["delete","create"]}},{"address":"aws_vpc.main","change":{"actions":["no-op"]}}]}
JSON
	;;
*)
	echo "terraform $@"
	if [ -n "$FAKE_TF_CRED" ]; then
		echo "cred=$FAKE_TF_CRED"
	fi
	;;
esac
exit 0
`
	path := filepath.Join(t.TempDir(), "terraform")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newTestRunner(t *testing.T, workDir string, env map[string]string) *CLIRunner {
	t.Helper()
	runner, err := NewCLIRunner(RunnerOptions{
		WorkDir:    workDir,
		BinaryPath: fakeTerraform(t),
		Env:        env,
	})
	require.NoError(t, err)
	return runner
}

func TestRunnerRequiresWorkDir(t *testing.T) {
	_, err := NewCLIRunner(RunnerOptions{})
	require.Error(t, err)
}

func TestRunnerPlan(t *testing.T) {
	runner := newTestRunner(t, t.TempDir(), nil)

	output, err := runner.Plan(context.Background(), "aws_instance.web")
	require.NoError(t, err)
	assert.Contains(t, output, "plan")
	assert.Contains(t, output, "-target=aws_instance.web")
	assert.Contains(t, output, "-no-color")
	assert.Contains(t, output, "-input=false")
}

func TestRunnerPlanUnscoped(t *testing.T) {
	runner := newTestRunner(t, t.TempDir(), nil)

	output, err := runner.Plan(context.Background(), "")
	require.NoError(t, err)
	assert.NotContains(t, output, "-target")
}

func TestRunnerPlanFailure(t *testing.T) {
	runner := newTestRunner(t, t.TempDir(), map[string]string{"FAKE_TF_FAIL": "plan"})

	_, err := runner.Plan(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terraform plan failed")
	assert.Contains(t, err.Error(), "simulated plan failure", "stderr is carried in the error")
}

func TestRunnerMissingBinary(t *testing.T) {
	runner, err := NewCLIRunner(RunnerOptions{
		WorkDir:    t.TempDir(),
		BinaryPath: filepath.Join(t.TempDir(), "no-such-terraform"),
	})
	require.NoError(t, err)

	_, err = runner.Plan(context.Background(), "")
	require.Error(t, err)
}

func TestRunnerExplicitEnv(t *testing.T) {
	runner := newTestRunner(t, t.TempDir(), map[string]string{"FAKE_TF_CRED": "role-prod"})

	output, err := runner.Plan(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, output, "cred=role-prod", "per-call env reaches the subprocess")

	_, ambient := os.LookupEnv("FAKE_TF_CRED")
	assert.False(t, ambient, "runner must not mutate the parent environment")
}

func TestRunnerPlanWithSummary(t *testing.T) {
	runner := newTestRunner(t, t.TempDir(), nil)

	preview, err := runner.PlanWithSummary(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, preview.Summary)
	assert.Equal(t, 2, preview.Summary.Add, "create plus the create half of a replace")
	assert.Equal(t, 1, preview.Summary.Change)
	assert.Equal(t, 2, preview.Summary.Destroy, "delete half of a replace counts too")
	assert.Len(t, preview.Summary.Targets, 4, "no-op changes are not listed")
}

func TestRunnerPlanWithSummaryDegradesWhenShowFails(t *testing.T) {
	runner := newTestRunner(t, t.TempDir(), map[string]string{"FAKE_TF_FAIL": "show"})

	preview, err := runner.PlanWithSummary(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, preview.Output)
	assert.Nil(t, preview.Summary)
}

func TestRunnerApplyTakesBackupFirst(t *testing.T) {
	workDir := t.TempDir()
	writeState(t, workDir, `{"serial": 7}`)

	manager := NewBackupManager(workDir, filepath.Join(t.TempDir(), "backups"), 10)
	runner, err := NewCLIRunner(RunnerOptions{
		WorkDir:            workDir,
		BinaryPath:         fakeTerraform(t),
		BackupManager:      manager,
		BackupBeforeChange: true,
	})
	require.NoError(t, err)

	result, err := runner.Apply(context.Background(), "aws_instance.web")
	require.NoError(t, err)
	require.NotNil(t, result.Backup)
	assert.FileExists(t, result.Backup.Path)
	assert.Contains(t, result.Output, "apply")
	assert.Contains(t, result.Output, "-auto-approve")
	assert.Contains(t, result.Output, "-target=aws_instance.web")
}

func TestRunnerApplyBackupFailureIsNotFatal(t *testing.T) {
	workDir := t.TempDir() // no state file: backup cannot be taken

	manager := NewBackupManager(workDir, filepath.Join(t.TempDir(), "backups"), 10)
	runner, err := NewCLIRunner(RunnerOptions{
		WorkDir:            workDir,
		BinaryPath:         fakeTerraform(t),
		BackupManager:      manager,
		BackupBeforeChange: true,
	})
	require.NoError(t, err)

	result, err := runner.Apply(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, result.Backup)
}

func TestRunnerApplyFailureStillReturnsBackup(t *testing.T) {
	workDir := t.TempDir()
	writeState(t, workDir, `{"serial": 7}`)

	manager := NewBackupManager(workDir, filepath.Join(t.TempDir(), "backups"), 10)
	runner, err := NewCLIRunner(RunnerOptions{
		WorkDir:            workDir,
		BinaryPath:         fakeTerraform(t),
		Env:                map[string]string{"FAKE_TF_FAIL": "apply"},
		BackupManager:      manager,
		BackupBeforeChange: true,
	})
	require.NoError(t, err)

	result, err := runner.Apply(context.Background(), "")
	require.Error(t, err)
	require.NotNil(t, result, "apply result is returned even on failure")
	assert.NotNil(t, result.Backup, "the backup taken before the failed apply is preserved for rollback")
}

func TestRunnerRollback(t *testing.T) {
	workDir := t.TempDir()
	writeState(t, workDir, `{"serial": 1}`)

	manager := NewBackupManager(workDir, filepath.Join(t.TempDir(), "backups"), 10)
	backup, err := manager.Create()
	require.NoError(t, err)

	runner, err := NewCLIRunner(RunnerOptions{
		WorkDir:       workDir,
		BinaryPath:    fakeTerraform(t),
		BackupManager: manager,
	})
	require.NoError(t, err)

	writeState(t, workDir, `{"serial": 2}`)
	require.NoError(t, runner.Rollback(context.Background(), backup.Path))

	state, err := os.ReadFile(filepath.Join(workDir, stateFileName))
	require.NoError(t, err)
	assert.Equal(t, `{"serial": 1}`, string(state))

	assert.ErrorIs(t, runner.Rollback(context.Background(), ""), ErrNoBackup)
}

func TestTargetAddress(t *testing.T) {
	assert.Equal(t, "aws_instance.web", TargetAddress("aws_instance.web"))
	assert.Equal(t, "", TargetAddress("web-server"))
}

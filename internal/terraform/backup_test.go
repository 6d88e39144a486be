package terraform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeState(t *testing.T, workDir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, stateFileName), []byte(content), 0644))
}

func TestBackupCreateAndRestore(t *testing.T) {
	workDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")
	writeState(t, workDir, `{"serial": 1}`)

	manager := NewBackupManager(workDir, backupDir, 10)

	backup, err := manager.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, backup.ID)
	assert.Equal(t, int64(len(`{"serial": 1}`)), backup.Size)
	assert.WithinDuration(t, time.Now(), backup.CreatedAt, time.Minute)
	assert.Contains(t, backup.Path, backup.ID, "file name derives from the handle")

	saved, err := os.ReadFile(backup.Path)
	require.NoError(t, err)
	assert.Equal(t, `{"serial": 1}`, string(saved))

	// Simulate a bad apply, then roll the state back.
	writeState(t, workDir, `{"serial": 2, "corrupted": true}`)
	require.NoError(t, manager.Restore(backup.Path))

	current, err := os.ReadFile(filepath.Join(workDir, stateFileName))
	require.NoError(t, err)
	assert.Equal(t, `{"serial": 1}`, string(current))
}

func TestBackupCreateWithoutState(t *testing.T) {
	manager := NewBackupManager(t.TempDir(), filepath.Join(t.TempDir(), "backups"), 10)

	_, err := manager.Create()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoStateFile))
}

func TestRestoreValidation(t *testing.T) {
	manager := NewBackupManager(t.TempDir(), t.TempDir(), 10)

	assert.ErrorIs(t, manager.Restore(""), ErrNoBackup)
	assert.Error(t, manager.Restore(filepath.Join(t.TempDir(), "missing.tfstate")))
}

func TestBackupRetention(t *testing.T) {
	workDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")
	writeState(t, workDir, `{"serial": 1}`)

	manager := NewBackupManager(workDir, backupDir, 2)

	for i := 0; i < 5; i++ {
		_, err := manager.Create()
		require.NoError(t, err)
	}

	remaining, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "older backups beyond the retention count are pruned")
}

func TestBackupList(t *testing.T) {
	workDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")
	writeState(t, workDir, "{}")

	manager := NewBackupManager(workDir, backupDir, 10)
	first, err := manager.Create()
	require.NoError(t, err)
	second, err := manager.Create()
	require.NoError(t, err)

	list, err := manager.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{first.Path, second.Path}, list)
}

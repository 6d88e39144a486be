package terraform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftguard/driftguard/internal/logger"
)

// ErrNoStateFile is returned when the working directory holds no state
// to back up.
var ErrNoStateFile = errors.New("no state file to back up")

// ErrNoBackup is returned by restore operations without a backup
// reference.
var ErrNoBackup = errors.New("no backup reference")

const stateFileName = "terraform.tfstate"

// Backup is the single handle describing one state backup. The file
// name, the handle and any rollback pointer recorded on an action all
// derive from this one value.
type Backup struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// BackupManager copies the working directory's state file into the
// backup directory before mutating operations and restores it on
// rollback.
type BackupManager struct {
	mu        sync.Mutex
	workDir   string
	backupDir string
	retention int
	log       logger.Logger
}

// NewBackupManager creates a manager keeping at most retention backups
// (older ones are pruned after each create).
func NewBackupManager(workDir, backupDir string, retention int) *BackupManager {
	if retention < 1 {
		retention = 1
	}
	return &BackupManager{
		workDir:   workDir,
		backupDir: backupDir,
		retention: retention,
		log:       logger.New("backup"),
	}
}

// Create copies the current state file into the backup directory and
// returns the handle describing it.
func (m *BackupManager) Create() (*Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	statePath := filepath.Join(m.workDir, stateFileName)
	data, err := os.ReadFile(statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoStateFile, statePath)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := os.MkdirAll(m.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	backup := &Backup{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
	backup.Path = filepath.Join(m.backupDir,
		fmt.Sprintf("%s_%s.tfstate", backup.CreatedAt.Format("20060102T150405Z"), backup.ID))

	if err := os.WriteFile(backup.Path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	backup.Size = int64(len(data))

	m.log.Info("state backup created",
		logger.String("backup_id", backup.ID),
		logger.String("path", backup.Path),
		logger.Int64("size", backup.Size))

	if err := m.cleanupOldBackups(); err != nil {
		m.log.Warn("failed to prune old backups", logger.Error(err))
	}

	return backup, nil
}

// Restore copies the backup file back over the working directory's
// state file.
func (m *BackupManager) Restore(backupPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if backupPath == "" {
		return ErrNoBackup
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", backupPath, err)
	}

	statePath := filepath.Join(m.workDir, stateFileName)
	if err := os.WriteFile(statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to restore state file: %w", err)
	}

	m.log.Info("state restored from backup",
		logger.String("backup", backupPath),
		logger.String("state", statePath))
	return nil
}

// List returns the backup files on disk, newest first.
func (m *BackupManager) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.backupDir, "*.tfstate"))
	if err != nil {
		return nil, err
	}
	// Timestamp-prefixed names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// cleanupOldBackups removes everything beyond the newest retention
// backups. Caller holds the lock.
func (m *BackupManager) cleanupOldBackups() error {
	matches, err := filepath.Glob(filepath.Join(m.backupDir, "*.tfstate"))
	if err != nil {
		return err
	}
	if len(matches) <= m.retention {
		return nil
	}

	sort.Strings(matches)
	excess := matches[:len(matches)-m.retention]
	var removeErrs []string
	for _, path := range excess {
		if err := os.Remove(path); err != nil {
			removeErrs = append(removeErrs, err.Error())
			continue
		}
		m.log.Debug("pruned old backup", logger.String("path", path))
	}
	if len(removeErrs) > 0 {
		return fmt.Errorf("failed to remove backups: %s", strings.Join(removeErrs, "; "))
	}
	return nil
}

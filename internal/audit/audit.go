// Package audit provides the append-only remediation event log. One
// JSONL partition per calendar day, plus statistics derived across all
// partitions.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/driftguard/driftguard/internal/logger"
)

// Level grades an audit entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Entry is one audit event. Metadata is free-form; a numeric
// "duration_ms" key feeds the mean-duration statistic.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	PlanID    string                 `json:"plan_id,omitempty"`
	ActionID  string                 `json:"action_id,omitempty"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Log appends entries to date-partitioned files under one directory.
// Writes are synchronous and serialized; partitions are named
// audit-YYYY-MM-DD.log.
type Log struct {
	mu  sync.Mutex
	dir string
	log logger.Logger

	// now is swappable for partition tests.
	now func() time.Time
}

// NewLog creates the audit directory if needed and returns the log.
func NewLog(dir string) (*Log, error) {
	if dir == "" {
		return nil, fmt.Errorf("audit directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Log{
		dir: dir,
		log: logger.New("audit"),
		now: time.Now,
	}, nil
}

// Record appends one entry to the current day's partition.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	if entry.Level == "" {
		entry.Level = LevelInfo
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	path := l.partitionPath(entry.Timestamp)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit partition: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Info records an informational event. The leveled helpers are safe on
// a nil Log so the audit trail can be wired optionally.
func (l *Log) Info(planID, actionID, message string, metadata map[string]interface{}) {
	l.record(LevelInfo, planID, actionID, message, metadata)
}

// Warn records a warning event.
func (l *Log) Warn(planID, actionID, message string, metadata map[string]interface{}) {
	l.record(LevelWarn, planID, actionID, message, metadata)
}

// Error records a failure event.
func (l *Log) Error(planID, actionID, message string, metadata map[string]interface{}) {
	l.record(LevelError, planID, actionID, message, metadata)
}

// Success records a completed operation.
func (l *Log) Success(planID, actionID, message string, metadata map[string]interface{}) {
	l.record(LevelSuccess, planID, actionID, message, metadata)
}

func (l *Log) record(level Level, planID, actionID, message string, metadata map[string]interface{}) {
	if l == nil {
		return
	}
	err := l.Record(Entry{
		PlanID:   planID,
		ActionID: actionID,
		Level:    level,
		Message:  message,
		Metadata: metadata,
	})
	if err != nil {
		// The audit trail must never break remediation itself.
		l.log.Error("failed to record audit entry",
			logger.String("message", message),
			logger.Error(err))
	}
}

// Dir returns the audit directory.
func (l *Log) Dir() string {
	return l.dir
}

func (l *Log) partitionPath(ts time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("audit-%s.log", ts.Format("2006-01-02")))
}

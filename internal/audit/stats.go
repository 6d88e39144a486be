package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrorFrequency counts exact-match occurrences of one error message.
type ErrorFrequency struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Statistics aggregates every audit partition. Partitions or lines
// that cannot be read are skipped, never fatal.
type Statistics struct {
	TotalEntries   int              `json:"total_entries"`
	Plans          int              `json:"plans"`
	Actions        int              `json:"actions"`
	SuccessCount   int              `json:"success_count"`
	ErrorCount     int              `json:"error_count"`
	WarnCount      int              `json:"warn_count"`
	MeanDuration   time.Duration    `json:"mean_duration"`
	TopErrors      []ErrorFrequency `json:"top_errors,omitempty"`
	Partitions     int              `json:"partitions"`
	SkippedLines   int              `json:"skipped_lines"`
	FirstTimestamp *time.Time       `json:"first_timestamp,omitempty"`
	LastTimestamp  *time.Time       `json:"last_timestamp,omitempty"`
}

const topErrorLimit = 5

// Statistics scans all partitions and derives aggregate counts, the
// mean duration over entries carrying duration metadata, and the five
// most frequent error messages.
func (l *Log) Statistics() (*Statistics, error) {
	partitions, err := filepath.Glob(filepath.Join(l.dir, "audit-*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(partitions)

	stats := &Statistics{}
	plans := make(map[string]struct{})
	actions := make(map[string]struct{})
	errorCounts := make(map[string]int)
	var durationTotal float64
	var durationSamples int

	for _, partition := range partitions {
		file, err := os.Open(partition)
		if err != nil {
			continue
		}
		stats.Partitions++

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				stats.SkippedLines++
				continue
			}

			stats.TotalEntries++
			if entry.PlanID != "" {
				plans[entry.PlanID] = struct{}{}
			}
			if entry.ActionID != "" {
				actions[entry.ActionID] = struct{}{}
			}

			switch entry.Level {
			case LevelSuccess:
				stats.SuccessCount++
			case LevelError:
				stats.ErrorCount++
				if entry.Message != "" {
					errorCounts[entry.Message]++
				}
			case LevelWarn:
				stats.WarnCount++
			}

			if ms, ok := durationMillis(entry.Metadata); ok {
				durationTotal += ms
				durationSamples++
			}

			ts := entry.Timestamp
			if !ts.IsZero() {
				if stats.FirstTimestamp == nil || ts.Before(*stats.FirstTimestamp) {
					first := ts
					stats.FirstTimestamp = &first
				}
				if stats.LastTimestamp == nil || ts.After(*stats.LastTimestamp) {
					last := ts
					stats.LastTimestamp = &last
				}
			}
		}
		file.Close()
	}

	stats.Plans = len(plans)
	stats.Actions = len(actions)
	if durationSamples > 0 {
		stats.MeanDuration = time.Duration(durationTotal/float64(durationSamples)) * time.Millisecond
	}
	stats.TopErrors = topErrors(errorCounts, topErrorLimit)
	return stats, nil
}

// durationMillis extracts a numeric duration_ms metadata value.
// JSON numbers decode as float64; anything else is ignored.
func durationMillis(metadata map[string]interface{}) (float64, bool) {
	raw, ok := metadata["duration_ms"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// topErrors ranks messages by count descending, ties broken
// alphabetically for stable output.
func topErrors(counts map[string]int, limit int) []ErrorFrequency {
	frequencies := make([]ErrorFrequency, 0, len(counts))
	for message, count := range counts {
		frequencies = append(frequencies, ErrorFrequency{Message: message, Count: count})
	}
	sort.Slice(frequencies, func(a, b int) bool {
		if frequencies[a].Count != frequencies[b].Count {
			return frequencies[a].Count > frequencies[b].Count
		}
		return frequencies[a].Message < frequencies[b].Message
	})
	if len(frequencies) > limit {
		frequencies = frequencies[:limit]
	}
	return frequencies
}

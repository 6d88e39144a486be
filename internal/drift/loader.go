package drift

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadScanReport reads a drift scan report from a JSON or YAML file,
// selecting the decoder by file extension (.json, .yaml, .yml).
func LoadScanReport(path string) (*ScanReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan report: %w", err)
	}

	var report ScanReport
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("failed to parse scan report %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("failed to parse scan report %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported scan report format %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}

	if report.ScanID == "" {
		base := filepath.Base(path)
		report.ScanID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &report, nil
}

package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DataSummary groups the collected years per data type, derived from the
// files present in the output directory.
type DataSummary map[string][]string

// BuildDataSummary scans dir for unit CSV files (plain or gzipped) named
// <data_type>_<year>.csv and groups the years per data type.
func BuildDataSummary(dir string) (DataSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	summary := make(DataSummary)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		name = strings.TrimSuffix(name, ".gz")
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		name = strings.TrimSuffix(name, ".csv")

		idx := strings.LastIndex(name, "_")
		if idx <= 0 || idx == len(name)-1 {
			continue
		}
		dataType, year := name[:idx], name[idx+1:]
		summary[dataType] = append(summary[dataType], year)
	}

	for dt := range summary {
		sort.Strings(summary[dt])
	}
	return summary, nil
}

// ExportDataSummary writes the summary as JSON into the output directory.
func ExportDataSummary(dir string) (string, error) {
	summary, err := BuildDataSummary(dir)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal data summary: %w", err)
	}

	path := filepath.Join(dir, "data_summary.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write data summary: %w", err)
	}
	return path, nil
}

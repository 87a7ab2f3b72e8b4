package csvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keibalab/keiba-collector/internal/racing"
)

// ErrNoManifest is returned when a unit has no manifest yet.
var ErrNoManifest = errors.New("no manifest found")

// Unit statuses recorded in manifests.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
)

// Manifest is the unit-complete marker written next to each unit's CSV
// file. Resumability keys off it: a unit is skipped on re-runs iff its
// manifest says completed and the CSV file is still present.
type Manifest struct {
	Unit        racing.WorkUnit `json:"unit"`
	Status      string          `json:"status"`
	File        string          `json:"file"`
	RowCount    int             `json:"row_count"`
	Checksum    string          `json:"checksum"`
	SubFetches  int             `json:"sub_fetches"`
	SubFailures int             `json:"sub_failures"`
	FailedURLs  []string        `json:"failed_urls,omitempty"`
	RunID       string          `json:"run_id"`
	Producer    ProducerInfo    `json:"producer"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ProducerInfo identifies what wrote the unit.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ManifestPath returns the manifest sidecar path for a unit.
func (s *Store) ManifestPath(unit racing.WorkUnit) string {
	return filepath.Join(s.dir, unit.FileStem()+".manifest.json")
}

// WriteManifest persists the manifest atomically.
func (s *Store) WriteManifest(unit racing.WorkUnit, m *Manifest) error {
	path := s.ManifestPath(unit)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("marshal manifest: %w", err)}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// LoadManifest reads a unit's manifest, or ErrNoManifest when absent.
func (s *Store) LoadManifest(unit racing.WorkUnit) (*Manifest, error) {
	data, err := os.ReadFile(s.ManifestPath(unit))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// IsComplete reports whether the unit was fully collected by a prior run:
// the manifest says completed and the data file is still there and
// non-empty.
func (s *Store) IsComplete(unit racing.WorkUnit) bool {
	m, err := s.LoadManifest(unit)
	if err != nil || m.Status != StatusCompleted {
		return false
	}
	info, err := os.Stat(s.UnitPath(unit))
	return err == nil && info.Size() > 0
}

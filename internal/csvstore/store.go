// Package csvstore persists work unit rows to per-unit CSV files. Writes
// are batch-atomic: the merged row set goes to a temp file which is renamed
// over the target, so a crash never leaves a torn row. Re-runs deduplicate
// against the rows already on disk by natural key; the first written row
// wins.
package csvstore

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/keibalab/keiba-collector/internal/racing"
)

// WriteError reports an I/O failure while persisting a unit. The target
// file keeps its pre-write contents.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Store writes unit CSV files and their manifests under a base directory.
type Store struct {
	dir  string
	gzip bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the output directory if needed.
func NewStore(dir string, gzipOutput bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &Store{
		dir:   dir,
		gzip:  gzipOutput,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the store's base directory.
func (s *Store) Dir() string { return s.dir }

// UnitPath returns the CSV path for a unit.
func (s *Store) UnitPath(unit racing.WorkUnit) string {
	name := unit.FileStem() + ".csv"
	if s.gzip {
		name += ".gz"
	}
	return filepath.Join(s.dir, name)
}

// lockFor returns the mutex serializing writers of one output path.
func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// WriteResult summarizes one unit write.
type WriteResult struct {
	Path     string
	Appended int
	Skipped  int // duplicate natural keys dropped
	Total    int // rows in the file after the write
	Checksum string
}

// WriteUnit merges rows into the unit's CSV file. Rows whose natural key is
// already present in the file (or earlier in the batch) are skipped. With
// overwrite set, the previous contents are discarded instead of merged. The
// whole batch lands via temp-file-and-rename or not at all.
func (s *Store) WriteUnit(unit racing.WorkUnit, rows []racing.Row, overwrite bool) (*WriteResult, error) {
	path := s.UnitPath(unit)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	schema := racing.SchemaFor(unit.Type)

	var existing []racing.Row
	if !overwrite {
		var err error
		existing, err = s.readRows(path, schema)
		if err != nil {
			return nil, &WriteError{Path: path, Err: err}
		}
	}

	seen := make(map[string]struct{}, len(existing)+len(rows))
	merged := make([]racing.Row, 0, len(existing)+len(rows))
	for _, row := range existing {
		seen[row.Key(schema)] = struct{}{}
		merged = append(merged, row)
	}

	res := &WriteResult{Path: path}
	for _, row := range rows {
		key := row.Key(schema)
		if _, dup := seen[key]; dup {
			res.Skipped++
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, row)
		res.Appended++
	}
	res.Total = len(merged)

	checksum, err := s.writeAtomic(path, schema, merged)
	if err != nil {
		return nil, &WriteError{Path: path, Err: err}
	}
	res.Checksum = checksum
	return res, nil
}

// writeAtomic writes the full row set to path via a temp file and returns
// the sha256 of the final file bytes.
func (s *Store) writeAtomic(path string, schema racing.Schema, rows []racing.Row) (string, error) {
	tempPath := path + ".tmp"

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}

	hash := sha256.New()
	var sink io.Writer = io.MultiWriter(f, hash)

	var gz *gzip.Writer
	if s.gzip {
		gz = gzip.NewWriter(sink)
		sink = gz
	}

	w := csv.NewWriter(sink)
	writeErr := w.Write(schema.Columns)
	if writeErr == nil {
		for _, row := range rows {
			if writeErr = w.Write(row.Record(schema)); writeErr != nil {
				break
			}
		}
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if writeErr == nil && gz != nil {
		writeErr = gz.Close()
	}
	if writeErr == nil {
		writeErr = f.Sync()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tempPath)
		return "", writeErr
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", err
	}

	return "sha256:" + hex.EncodeToString(hash.Sum(nil)), nil
}

// readRows loads the unit file's current rows. A missing file is an empty
// unit, not an error.
func (s *Store) readRows(path string, schema racing.Schema) ([]racing.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []racing.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, racing.RowFromRecord(schema, rec))
	}
	return rows, nil
}

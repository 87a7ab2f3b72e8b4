package csvstore

import (
	"bytes"
	"encoding/csv"
	"os"
	"strings"
	"testing"

	"github.com/keibalab/keiba-collector/internal/racing"
)

func testRows() []racing.Row {
	return []racing.Row{
		{
			"date": "2000-01-05", "venue": "Nakayama", "race_number": "9",
			"race_name": "Junior Cup", "race_class": "OP", "distance": "1600", "track_type": "turf",
		},
		{
			"date": "2000-01-05", "venue": "Kyoto", "race_number": "10",
			"race_name": "Shinzan Kinen", "race_class": "G3", "distance": "1600", "track_type": "turf",
		},
		{
			"date": "2000-01-05", "venue": "Nakayama", "race_number": "11",
			"race_name": "Nakayama Kimpai", "race_class": "G3", "distance": "2000", "track_type": "turf",
		},
	}
}

func TestWriteUnitCreatesFileWithHeader(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	unit := racing.WorkUnit{Year: 2000, Type: racing.RaceCalendar}
	res, err := store.WriteUnit(unit, testRows(), false)
	if err != nil {
		t.Fatalf("WriteUnit failed: %v", err)
	}
	if res.Appended != 3 || res.Skipped != 0 || res.Total != 3 {
		t.Errorf("unexpected result: %+v", res)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse output csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d records", len(records))
	}
	wantHeader := strings.Join(racing.SchemaFor(racing.RaceCalendar).Columns, ",")
	if got := strings.Join(records[0], ","); got != wantHeader {
		t.Errorf("header = %q, want %q", got, wantHeader)
	}
}

func TestWriteUnitIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	unit := racing.WorkUnit{Year: 2000, Type: racing.RaceCalendar}

	first, err := store.WriteUnit(unit, testRows(), false)
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	before, _ := os.ReadFile(first.Path)

	second, err := store.WriteUnit(unit, testRows(), false)
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if second.Appended != 0 || second.Skipped != 3 {
		t.Errorf("second write should dedup everything: %+v", second)
	}

	after, _ := os.ReadFile(first.Path)
	if !bytes.Equal(before, after) {
		t.Error("re-running the same write must leave the file byte-identical")
	}
	if first.Checksum != second.Checksum {
		t.Errorf("checksums differ: %s vs %s", first.Checksum, second.Checksum)
	}
}

func TestWriteUnitMergesNewKeys(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	unit := racing.WorkUnit{Year: 2000, Type: racing.RaceCalendar}

	if _, err := store.WriteUnit(unit, testRows()[:2], false); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	// A batch overlapping one existing key appends only the new key.
	res, err := store.WriteUnit(unit, testRows()[1:], false)
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if res.Appended != 1 || res.Skipped != 1 || res.Total != 3 {
		t.Errorf("unexpected merge result: %+v", res)
	}
}

func TestWriteUnitOverwrite(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	unit := racing.WorkUnit{Year: 2000, Type: racing.RaceCalendar}

	if _, err := store.WriteUnit(unit, testRows(), false); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	res, err := store.WriteUnit(unit, testRows()[:1], true)
	if err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("overwrite should truncate: %+v", res)
	}
}

func TestWriteUnitGzip(t *testing.T) {
	store, err := NewStore(t.TempDir(), true)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	unit := racing.WorkUnit{Year: 2000, Type: racing.RaceCalendar}

	res, err := store.WriteUnit(unit, testRows(), false)
	if err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if !strings.HasSuffix(res.Path, ".csv.gz") {
		t.Errorf("expected .csv.gz path, got %s", res.Path)
	}

	// Dedup must see through the compression on re-runs.
	second, err := store.WriteUnit(unit, testRows(), false)
	if err != nil {
		t.Fatalf("second gzip write failed: %v", err)
	}
	if second.Appended != 0 || second.Skipped != 3 {
		t.Errorf("gzip dedup failed: %+v", second)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	unit := racing.WorkUnit{Year: 2000, Type: racing.RaceCalendar}

	if _, err := store.LoadManifest(unit); err != ErrNoManifest {
		t.Errorf("expected ErrNoManifest, got %v", err)
	}
	if store.IsComplete(unit) {
		t.Error("unit without manifest must not be complete")
	}

	res, err := store.WriteUnit(unit, testRows(), false)
	if err != nil {
		t.Fatalf("WriteUnit failed: %v", err)
	}

	m := &Manifest{
		Unit:     unit,
		Status:   StatusCompleted,
		File:     res.Path,
		RowCount: res.Total,
		Checksum: res.Checksum,
	}
	if err := store.WriteManifest(unit, m); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}

	loaded, err := store.LoadManifest(unit)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if loaded.Status != StatusCompleted || loaded.RowCount != 3 {
		t.Errorf("unexpected manifest: %+v", loaded)
	}
	if !store.IsComplete(unit) {
		t.Error("unit with completed manifest and data file must be complete")
	}
}

func TestIsCompleteRequiresDataFile(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	unit := racing.WorkUnit{Year: 2001, Type: racing.HorseData}

	m := &Manifest{Unit: unit, Status: StatusCompleted}
	if err := store.WriteManifest(unit, m); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	if store.IsComplete(unit) {
		t.Error("manifest without a data file must not count as complete")
	}

	partial := &Manifest{Unit: unit, Status: StatusPartial}
	if err := store.WriteManifest(unit, partial); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	if store.IsComplete(unit) {
		t.Error("partial manifest must not count as complete")
	}
}
